package service

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/surveyhq/survey-api/internal/domain/campaign"
	"github.com/surveyhq/survey-api/internal/domain/model"
)

// memParticipantRepo is an in-memory ParticipantRepository shared by the
// handler tests. It doubles as the LinkGenerator's identifier checker.
type memParticipantRepo struct {
	mu           sync.Mutex
	participants map[string]*model.Participant
	updateErrFor map[string]error
	getErrFor    map[string]error
}

func newMemParticipantRepo(participants ...*model.Participant) *memParticipantRepo {
	repo := &memParticipantRepo{
		participants: map[string]*model.Participant{},
		updateErrFor: map[string]error{},
		getErrFor:    map[string]error{},
	}
	for _, p := range participants {
		repo.participants[p.ID] = p
	}
	return repo
}

func (r *memParticipantRepo) GetByID(_ context.Context, id string) (*model.Participant, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.getErrFor[id]; err != nil {
		return nil, err
	}
	p, ok := r.participants[id]
	if !ok {
		return nil, errors.New("participant not found")
	}
	copied := *p
	return &copied, nil
}

func (r *memParticipantRepo) GetActiveBySurvey(_ context.Context, surveyID string) ([]*model.Participant, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*model.Participant
	for _, p := range r.participants {
		if p.SurveyID == surveyID && p.Status == model.ParticipantStatusActive {
			copied := *p
			out = append(out, &copied)
		}
	}
	return out, nil
}

func (r *memParticipantRepo) Update(
	_ context.Context,
	id string,
	req model.UpdateParticipantRequest,
) (*model.Participant, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.updateErrFor[id]; err != nil {
		return nil, err
	}
	p, ok := r.participants[id]
	if !ok {
		return nil, errors.New("participant not found")
	}
	if req.Status != nil {
		p.Status = *req.Status
	}
	if req.Identifier != nil {
		p.Identifier = req.Identifier
	}
	if req.AccessToken != nil {
		p.AccessToken = req.AccessToken
	}
	if req.LastEmailedAt != nil {
		p.LastEmailedAt = req.LastEmailedAt
	}
	copied := *p
	return &copied, nil
}

func (r *memParticipantRepo) IdentifierExists(_ context.Context, identifier string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, p := range r.participants {
		if p.Identifier != nil && *p.Identifier == identifier {
			return true, nil
		}
	}
	return false, nil
}

func (r *memParticipantRepo) CountBySurvey(_ context.Context, surveyID string) (map[model.ParticipantStatus]int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	counts := map[model.ParticipantStatus]int{}
	for _, p := range r.participants {
		if p.SurveyID == surveyID {
			counts[p.Status]++
		}
	}
	return counts, nil
}

func (r *memParticipantRepo) get(id string) *model.Participant {
	r.mu.Lock()
	defer r.mu.Unlock()
	p := r.participants[id]
	if p == nil {
		return nil
	}
	copied := *p
	return &copied
}

// memSurveyRepo is an in-memory SurveyRepository recording Update calls.
type memSurveyRepo struct {
	mu        sync.Mutex
	surveys   map[string]*model.Survey
	updates   []map[string]any
	updateErr error
}

func newMemSurveyRepo(surveys ...*model.Survey) *memSurveyRepo {
	repo := &memSurveyRepo{surveys: map[string]*model.Survey{}}
	for _, s := range surveys {
		repo.surveys[s.ID] = s
	}
	return repo
}

func (r *memSurveyRepo) GetByID(_ context.Context, id string) (*model.Survey, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.surveys[id]
	if !ok {
		return nil, errors.New("survey not found")
	}
	copied := *s
	return &copied, nil
}

func (r *memSurveyRepo) Update(_ context.Context, id string, fields map[string]any) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.updateErr != nil {
		return r.updateErr
	}
	if _, ok := r.surveys[id]; !ok {
		return errors.New("survey not found")
	}
	r.updates = append(r.updates, fields)
	return nil
}

func (r *memSurveyRepo) lastUpdate() map[string]any {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.updates) == 0 {
		return nil
	}
	return r.updates[len(r.updates)-1]
}

// recordingGateway captures sent messages and can fail selected recipients.
type recordingGateway struct {
	mu      sync.Mutex
	sent    []campaign.Message
	failFor map[string]error
}

func newRecordingGateway() *recordingGateway {
	return &recordingGateway{failFor: map[string]error{}}
}

func (g *recordingGateway) Send(_ context.Context, msg campaign.Message) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if err := g.failFor[msg.To]; err != nil {
		return err
	}
	g.sent = append(g.sent, msg)
	return nil
}

func (g *recordingGateway) sentTo() []string {
	g.mu.Lock()
	defer g.mu.Unlock()
	out := make([]string, 0, len(g.sent))
	for _, m := range g.sent {
		out = append(out, m.To)
	}
	return out
}

var fixedHandlerNow = func() time.Time {
	return time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
}
