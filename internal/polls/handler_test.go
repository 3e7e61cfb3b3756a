package polls

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sort"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/poplygo/backend/internal/auth"
	"github.com/poplygo/backend/internal/middleware"
	"github.com/poplygo/backend/internal/models"
	"github.com/poplygo/backend/internal/realtime"
	"github.com/poplygo/backend/pkg/response"
)

type memPolls struct {
	polls   map[uuid.UUID]*models.Poll
	options map[uuid.UUID][]*models.PollOption
	// poll -> voter -> selected options
	votes map[uuid.UUID]map[uuid.UUID]map[uuid.UUID]bool
	seq   int
}

func newMemPolls() *memPolls {
	return &memPolls{
		polls:   make(map[uuid.UUID]*models.Poll),
		options: make(map[uuid.UUID][]*models.PollOption),
		votes:   make(map[uuid.UUID]map[uuid.UUID]map[uuid.UUID]bool),
	}
}

func (m *memPolls) Create(_ context.Context, p *models.Poll, optionTexts []string) ([]models.PollOption, error) {
	p.ID = uuid.New()
	p.Active = true
	m.seq++
	p.CreatedAt = time.Unix(int64(m.seq), 0)
	cp := *p
	m.polls[p.ID] = &cp
	m.votes[p.ID] = make(map[uuid.UUID]map[uuid.UUID]bool)

	out := make([]models.PollOption, 0, len(optionTexts))
	for i, text := range optionTexts {
		o := &models.PollOption{ID: uuid.New(), PollID: p.ID, OptionText: text, Position: i}
		m.options[p.ID] = append(m.options[p.ID], o)
		out = append(out, *o)
	}
	return out, nil
}

func (m *memPolls) GetByID(_ context.Context, id uuid.UUID) (*models.Poll, error) {
	p, ok := m.polls[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *p
	return &cp, nil
}

func (m *memPolls) ListBySession(_ context.Context, sessionID uuid.UUID) ([]models.Poll, error) {
	var out []models.Poll
	for _, p := range m.polls {
		if p.SessionID == sessionID && !p.Deleted {
			out = append(out, *p)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

func (m *memPolls) OptionsByPoll(_ context.Context, pollID uuid.UUID) ([]models.PollOption, error) {
	out := make([]models.PollOption, 0, len(m.options[pollID]))
	for _, o := range m.options[pollID] {
		out = append(out, *o)
	}
	return out, nil
}

func (m *memPolls) option(pollID, optionID uuid.UUID) *models.PollOption {
	for _, o := range m.options[pollID] {
		if o.ID == optionID {
			return o
		}
	}
	return nil
}

func (m *memPolls) Vote(_ context.Context, pollID, optionID, voterID uuid.UUID) (int, error) {
	p, ok := m.polls[pollID]
	if !ok {
		return 0, ErrNotFound
	}
	if !p.Active || p.Deleted {
		return 0, ErrPollClosed
	}
	o := m.option(pollID, optionID)
	if o == nil {
		return 0, ErrOptionNotFound
	}
	sel := m.votes[pollID][voterID]
	if sel == nil {
		sel = make(map[uuid.UUID]bool)
		m.votes[pollID][voterID] = sel
	}
	if sel[optionID] {
		return 0, ErrAlreadyVoted
	}
	if !p.AllowMultipleVotes && len(sel) >= 1 {
		return 0, ErrAlreadyVoted
	}
	if p.AllowMultipleVotes && len(sel) >= p.MaxVotes {
		return 0, ErrVoteLimit
	}
	sel[optionID] = true
	o.VoteCount++
	return o.VoteCount, nil
}

func (m *memPolls) RemoveVote(_ context.Context, pollID, optionID, voterID uuid.UUID) (int, error) {
	o := m.option(pollID, optionID)
	if o == nil {
		return 0, ErrOptionNotFound
	}
	sel := m.votes[pollID][voterID]
	if !sel[optionID] {
		return 0, ErrNotVoted
	}
	delete(sel, optionID)
	if o.VoteCount > 0 {
		o.VoteCount--
	}
	return o.VoteCount, nil
}

func (m *memPolls) SelectionsByVoter(_ context.Context, pollID, voterID uuid.UUID) ([]uuid.UUID, error) {
	var out []uuid.UUID
	for id := range m.votes[pollID][voterID] {
		out = append(out, id)
	}
	return out, nil
}

func (m *memPolls) Close(_ context.Context, id uuid.UUID) error {
	p, ok := m.polls[id]
	if !ok {
		return ErrNotFound
	}
	p.Active = false
	return nil
}

func (m *memPolls) ToggleResults(_ context.Context, id uuid.UUID) (bool, error) {
	p, ok := m.polls[id]
	if !ok {
		return false, ErrNotFound
	}
	p.ShowResultsToStudents = !p.ShowResultsToStudents
	return p.ShowResultsToStudents, nil
}

func (m *memPolls) SetCorrectOption(_ context.Context, pollID, optionID uuid.UUID) (*uuid.UUID, error) {
	p, ok := m.polls[pollID]
	if !ok {
		return nil, ErrNotFound
	}
	if m.option(pollID, optionID) == nil {
		return nil, ErrOptionNotFound
	}
	if p.CorrectOptionID != nil && *p.CorrectOptionID == optionID {
		p.CorrectOptionID = nil
		return nil, nil
	}
	id := optionID
	p.CorrectOptionID = &id
	return p.CorrectOptionID, nil
}

func (m *memPolls) SoftDelete(_ context.Context, id uuid.UUID) error {
	p, ok := m.polls[id]
	if !ok {
		return ErrNotFound
	}
	p.Deleted = true
	return nil
}

type memSessions struct {
	byCode map[string]*models.Session
}

func (m *memSessions) GetByCode(_ context.Context, code string) (*models.Session, error) {
	s, ok := m.byCode[code]
	if !ok {
		return nil, ErrNotFound
	}
	return s, nil
}

func setClaims(claims *auth.Claims) gin.HandlerFunc {
	return func(c *gin.Context) {
		if claims != nil {
			c.Set(middleware.ContextClaims, claims)
		}
	}
}

func newRouter(h *Handler, claims *auth.Claims) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(setClaims(claims))
	r.POST("/api/sessions/:code/polls", h.Create)
	r.GET("/api/sessions/:code/polls", h.List)
	r.POST("/api/polls/:id/votes", h.Vote)
	r.DELETE("/api/polls/:id/votes/:optionID", h.RemoveVote)
	r.POST("/api/polls/:id/close", h.Close)
	r.PATCH("/api/polls/:id/results-visibility", h.ToggleResults)
	r.PATCH("/api/polls/:id/correct-option", h.SetCorrectOption)
	r.DELETE("/api/polls/:id", h.Delete)
	return r
}

func doJSON(t *testing.T, r *gin.Engine, method, path string, body interface{}) (*httptest.ResponseRecorder, response.Body) {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encode body: %v", err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	var env response.Body
	if w.Body.Len() > 0 {
		if err := json.Unmarshal(w.Body.Bytes(), &env); err != nil {
			t.Fatalf("decode envelope: %v (body %s)", err, w.Body.String())
		}
	}
	return w, env
}

type fixture struct {
	store    *memPolls
	sessions *memSessions
	session  *models.Session
}

func newFixture() *fixture {
	s := &models.Session{ID: uuid.New(), Code: "123456", Title: "Lecture", Active: true}
	return &fixture{
		store:    newMemPolls(),
		sessions: &memSessions{byCode: map[string]*models.Session{s.Code: s}},
		session:  s,
	}
}

func (f *fixture) handler() *Handler {
	return NewHandler(f.store, f.sessions, realtime.NewHub(zap.NewNop(), nil, nil))
}

func (f *fixture) participant() *auth.Claims {
	return &auth.Claims{SessionID: f.session.ID, VoterID: uuid.New(), Role: auth.RoleParticipant}
}

func (f *fixture) host() *auth.Claims {
	return &auth.Claims{SessionID: f.session.ID, Role: auth.RoleHost}
}

// seed creates a poll through the store so the handler sees consistent state.
func (f *fixture) seed(allowMulti bool, maxVotes int, optionTexts ...string) (*models.Poll, []models.PollOption) {
	p := &models.Poll{SessionID: f.session.ID, Question: "pick one", AllowMultipleVotes: allowMulti, MaxVotes: maxVotes}
	options, _ := f.store.Create(context.Background(), p, optionTexts)
	return f.store.polls[p.ID], options
}

func TestValidateCreate(t *testing.T) {
	tests := []struct {
		name    string
		req     CreateRequest
		wantErr bool
		wantMax int
		wantLen int
	}{
		{"single choice", CreateRequest{Question: "q", Options: []string{"a", "b"}}, false, 1, 2},
		{"single ignores max_votes", CreateRequest{Question: "q", Options: []string{"a", "b"}, MaxVotes: 5}, false, 1, 2},
		{"multi", CreateRequest{Question: "q", Options: []string{"a", "b", "c"}, AllowMultipleVotes: true, MaxVotes: 2}, false, 2, 3},
		{"blank options dropped", CreateRequest{Question: "q", Options: []string{"a", "  ", "b"}}, false, 1, 2},
		{"empty question", CreateRequest{Question: "  ", Options: []string{"a", "b"}}, true, 0, 0},
		{"one option", CreateRequest{Question: "q", Options: []string{"a", ""}}, true, 0, 0},
		{"too many options", CreateRequest{Question: "q", Options: make([]string, 11)}, true, 0, 0},
		{"multi max_votes zero", CreateRequest{Question: "q", Options: []string{"a", "b"}, AllowMultipleVotes: true}, true, 0, 0},
		{"multi max_votes above options", CreateRequest{Question: "q", Options: []string{"a", "b"}, AllowMultipleVotes: true, MaxVotes: 3}, true, 0, 0},
	}
	for i := range tests[6].req.Options {
		tests[6].req.Options[i] = "opt"
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			options, maxVotes, err := ValidateCreate(&tt.req)
			if tt.wantErr {
				if err == nil {
					t.Fatal("want error, got nil")
				}
				return
			}
			if err != nil {
				t.Fatalf("ValidateCreate: %v", err)
			}
			if maxVotes != tt.wantMax {
				t.Errorf("maxVotes = %d, want %d", maxVotes, tt.wantMax)
			}
			if len(options) != tt.wantLen {
				t.Errorf("len(options) = %d, want %d", len(options), tt.wantLen)
			}
		})
	}
}

func TestCreatePoll(t *testing.T) {
	f := newFixture()
	r := newRouter(f.handler(), f.host())

	w, env := doJSON(t, r, http.MethodPost, "/api/sessions/123456/polls",
		gin.H{"question": "Best sort?", "options": []string{"merge", "quick"}})
	if w.Code != http.StatusCreated {
		t.Fatalf("status = %d, want 201 (body %s)", w.Code, w.Body.String())
	}
	data := env.Data.(map[string]interface{})
	options := data["options"].([]interface{})
	if len(options) != 2 {
		t.Fatalf("options = %d, want 2", len(options))
	}
	// Creator response includes zeroed results.
	first := options[0].(map[string]interface{})
	if first["vote_count"].(float64) != 0 {
		t.Errorf("vote_count = %v, want 0", first["vote_count"])
	}
	if data["max_votes"].(float64) != 1 {
		t.Errorf("max_votes = %v, want 1 for single choice", data["max_votes"])
	}
}

func TestCreatePollRequiresHost(t *testing.T) {
	f := newFixture()
	r := newRouter(f.handler(), f.participant())
	w, _ := doJSON(t, r, http.MethodPost, "/api/sessions/123456/polls",
		gin.H{"question": "q", "options": []string{"a", "b"}})
	if w.Code != http.StatusForbidden {
		t.Errorf("status = %d, want 403", w.Code)
	}
}

func TestCreatePollOnEndedSession(t *testing.T) {
	f := newFixture()
	f.session.Active = false
	r := newRouter(f.handler(), f.host())
	w, _ := doJSON(t, r, http.MethodPost, "/api/sessions/123456/polls",
		gin.H{"question": "q", "options": []string{"a", "b"}})
	if w.Code != http.StatusConflict {
		t.Errorf("status = %d, want 409", w.Code)
	}
}

func TestSingleChoiceSecondVoteRejected(t *testing.T) {
	f := newFixture()
	p, options := f.seed(false, 1, "a", "b")
	voter := f.participant()
	r := newRouter(f.handler(), voter)

	w, env := doJSON(t, r, http.MethodPost, "/api/polls/"+p.ID.String()+"/votes",
		gin.H{"option_id": options[0].ID})
	if w.Code != http.StatusOK {
		t.Fatalf("first vote status = %d, want 200 (body %s)", w.Code, w.Body.String())
	}
	if n := env.Data.(map[string]interface{})["vote_count"].(float64); n != 1 {
		t.Errorf("vote_count = %v, want 1", n)
	}

	// Switching to another option is rejected; its counter stays untouched.
	w, _ = doJSON(t, r, http.MethodPost, "/api/polls/"+p.ID.String()+"/votes",
		gin.H{"option_id": options[1].ID})
	if w.Code != http.StatusConflict {
		t.Errorf("second vote status = %d, want 409", w.Code)
	}
	if got := f.store.option(p.ID, options[1].ID).VoteCount; got != 0 {
		t.Errorf("option b vote_count = %d, want 0", got)
	}
	if got := f.store.option(p.ID, options[0].ID).VoteCount; got != 1 {
		t.Errorf("option a vote_count = %d, want 1", got)
	}
}

func TestMultiChoiceVoteLimit(t *testing.T) {
	f := newFixture()
	p, options := f.seed(true, 2, "a", "b", "c")
	voter := f.participant()
	r := newRouter(f.handler(), voter)

	for i := 0; i < 2; i++ {
		w, _ := doJSON(t, r, http.MethodPost, "/api/polls/"+p.ID.String()+"/votes",
			gin.H{"option_id": options[i].ID})
		if w.Code != http.StatusOK {
			t.Fatalf("vote %d status = %d, want 200", i, w.Code)
		}
	}
	w, _ := doJSON(t, r, http.MethodPost, "/api/polls/"+p.ID.String()+"/votes",
		gin.H{"option_id": options[2].ID})
	if w.Code != http.StatusConflict {
		t.Errorf("over-limit vote status = %d, want 409", w.Code)
	}
}

func TestDuplicateOptionVoteRejected(t *testing.T) {
	f := newFixture()
	p, options := f.seed(true, 2, "a", "b")
	r := newRouter(f.handler(), f.participant())

	doJSON(t, r, http.MethodPost, "/api/polls/"+p.ID.String()+"/votes", gin.H{"option_id": options[0].ID})
	w, _ := doJSON(t, r, http.MethodPost, "/api/polls/"+p.ID.String()+"/votes", gin.H{"option_id": options[0].ID})
	if w.Code != http.StatusConflict {
		t.Errorf("duplicate vote status = %d, want 409", w.Code)
	}
	if got := f.store.option(p.ID, options[0].ID).VoteCount; got != 1 {
		t.Errorf("vote_count = %d, want 1", got)
	}
}

func TestVoteOnClosedPoll(t *testing.T) {
	f := newFixture()
	p, options := f.seed(false, 1, "a", "b")
	p.Active = false
	r := newRouter(f.handler(), f.participant())

	w, _ := doJSON(t, r, http.MethodPost, "/api/polls/"+p.ID.String()+"/votes",
		gin.H{"option_id": options[0].ID})
	if w.Code != http.StatusConflict {
		t.Errorf("status = %d, want 409", w.Code)
	}
}

func TestVoteForeignOption(t *testing.T) {
	f := newFixture()
	p, _ := f.seed(false, 1, "a", "b")
	r := newRouter(f.handler(), f.participant())

	w, _ := doJSON(t, r, http.MethodPost, "/api/polls/"+p.ID.String()+"/votes",
		gin.H{"option_id": uuid.New()})
	if w.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", w.Code)
	}
}

func TestRemoveVote(t *testing.T) {
	f := newFixture()
	p, options := f.seed(true, 2, "a", "b")
	voter := f.participant()
	r := newRouter(f.handler(), voter)

	doJSON(t, r, http.MethodPost, "/api/polls/"+p.ID.String()+"/votes", gin.H{"option_id": options[0].ID})
	w, env := doJSON(t, r, http.MethodDelete,
		"/api/polls/"+p.ID.String()+"/votes/"+options[0].ID.String(), nil)
	if w.Code != http.StatusOK {
		t.Fatalf("retract status = %d, want 200", w.Code)
	}
	if n := env.Data.(map[string]interface{})["vote_count"].(float64); n != 0 {
		t.Errorf("vote_count = %v, want 0", n)
	}

	w, _ = doJSON(t, r, http.MethodDelete,
		"/api/polls/"+p.ID.String()+"/votes/"+options[0].ID.String(), nil)
	if w.Code != http.StatusConflict {
		t.Errorf("double retract status = %d, want 409", w.Code)
	}
}

func TestRemoveVoteSingleChoiceRejected(t *testing.T) {
	f := newFixture()
	p, options := f.seed(false, 1, "a", "b")
	voter := f.participant()
	r := newRouter(f.handler(), voter)

	doJSON(t, r, http.MethodPost, "/api/polls/"+p.ID.String()+"/votes", gin.H{"option_id": options[0].ID})
	w, _ := doJSON(t, r, http.MethodDelete,
		"/api/polls/"+p.ID.String()+"/votes/"+options[0].ID.String(), nil)
	if w.Code != http.StatusConflict {
		t.Errorf("status = %d, want 409", w.Code)
	}
	if got := f.store.option(p.ID, options[0].ID).VoteCount; got != 1 {
		t.Errorf("vote_count = %d, want 1", got)
	}
}

func TestCorrectOptionToggle(t *testing.T) {
	f := newFixture()
	p, options := f.seed(false, 1, "a", "b")
	r := newRouter(f.handler(), f.host())

	_, env := doJSON(t, r, http.MethodPatch, "/api/polls/"+p.ID.String()+"/correct-option",
		gin.H{"option_id": options[0].ID})
	data := env.Data.(map[string]interface{})
	if data["correct_option_id"].(string) != options[0].ID.String() {
		t.Errorf("correct_option_id = %v, want %s", data["correct_option_id"], options[0].ID)
	}

	// Marking the same option again clears the answer key.
	_, env = doJSON(t, r, http.MethodPatch, "/api/polls/"+p.ID.String()+"/correct-option",
		gin.H{"option_id": options[0].ID})
	if env.Data.(map[string]interface{})["correct_option_id"] != nil {
		t.Error("second mark did not clear correct option")
	}

	w, _ := doJSON(t, r, http.MethodPatch, "/api/polls/"+p.ID.String()+"/correct-option",
		gin.H{"option_id": uuid.New()})
	if w.Code != http.StatusBadRequest {
		t.Errorf("foreign option status = %d, want 400", w.Code)
	}
}

func TestListVisibility(t *testing.T) {
	f := newFixture()
	hidden, hiddenOpts := f.seed(false, 1, "a", "b")
	shown, _ := f.seed(false, 1, "c", "d")
	shown.ShowResultsToStudents = true
	correct := hiddenOpts[0].ID
	hidden.CorrectOptionID = &correct

	voter := f.participant()
	r := newRouter(f.handler(), voter)
	doJSON(t, r, http.MethodPost, "/api/polls/"+hidden.ID.String()+"/votes",
		gin.H{"option_id": hiddenOpts[0].ID})

	_, env := doJSON(t, r, http.MethodGet, "/api/sessions/123456/polls", nil)
	raw, _ := json.Marshal(env.Data.(map[string]interface{})["polls"])
	var views []map[string]interface{}
	if err := json.Unmarshal(raw, &views); err != nil {
		t.Fatalf("decode polls: %v", err)
	}
	if len(views) != 2 {
		t.Fatalf("polls = %d, want 2", len(views))
	}

	for _, v := range views {
		opts := v["options"].([]interface{})
		first := opts[0].(map[string]interface{})
		_, hasCount := first["vote_count"]
		switch v["id"].(string) {
		case hidden.ID.String():
			if hasCount {
				t.Error("hidden poll exposes vote counts to participant")
			}
			if v["correct_option_id"] != nil {
				t.Error("hidden poll exposes answer key to participant")
			}
			sel := v["selections"].([]interface{})
			if len(sel) != 1 || sel[0].(string) != hiddenOpts[0].ID.String() {
				t.Errorf("selections = %v, want voter's own option", sel)
			}
		case shown.ID.String():
			if !hasCount {
				t.Error("revealed poll hides vote counts from participant")
			}
		}
	}

	// The host sees results on every poll.
	r = newRouter(f.handler(), f.host())
	_, env = doJSON(t, r, http.MethodGet, "/api/sessions/123456/polls", nil)
	raw, _ = json.Marshal(env.Data.(map[string]interface{})["polls"])
	views = nil
	if err := json.Unmarshal(raw, &views); err != nil {
		t.Fatalf("decode polls: %v", err)
	}
	for _, v := range views {
		first := v["options"].([]interface{})[0].(map[string]interface{})
		if _, ok := first["vote_count"]; !ok {
			t.Errorf("host cannot see results on poll %v", v["id"])
		}
	}
}

func TestDeletePollHidesIt(t *testing.T) {
	f := newFixture()
	p, _ := f.seed(false, 1, "a", "b")
	r := newRouter(f.handler(), f.host())

	w, _ := doJSON(t, r, http.MethodDelete, "/api/polls/"+p.ID.String(), nil)
	if w.Code != http.StatusOK {
		t.Fatalf("delete status = %d, want 200", w.Code)
	}
	if !f.store.polls[p.ID].Deleted {
		t.Error("poll not soft-deleted")
	}

	// Deleted polls reject participant votes as missing.
	r = newRouter(f.handler(), f.participant())
	w, _ = doJSON(t, r, http.MethodPost, "/api/polls/"+p.ID.String()+"/votes",
		gin.H{"option_id": uuid.New()})
	if w.Code != http.StatusNotFound {
		t.Errorf("vote on deleted poll status = %d, want 404", w.Code)
	}
}
