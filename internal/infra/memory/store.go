package memory

import (
	"context"
	"math/rand"
	"sort"
	"sync"
	"time"

	"quizbot/internal/domain"
)

// Store is an in-memory implementation of quiz.Store, used for tests and for
// running the bot without a database.
type Store struct {
	mu     sync.RWMutex
	clock  func() time.Time
	rnd    *rand.Rand
	nextID int64

	groups    map[int64]*domain.Group
	users     map[int64]*domain.User
	questions map[int64]*domain.Question
	usage     map[int64]map[int64]struct{} // groupID -> question ids consumed
	polls     map[int64]*domain.ActivePoll
	players   map[playerKey]*domain.Player
}

type playerKey struct {
	userID  int64
	groupID int64
}

func NewStore() *Store {
	return &Store{
		clock:     time.Now,
		rnd:       rand.New(rand.NewSource(time.Now().UnixNano())),
		nextID:    1,
		groups:    make(map[int64]*domain.Group),
		users:     make(map[int64]*domain.User),
		questions: make(map[int64]*domain.Question),
		usage:     make(map[int64]map[int64]struct{}),
		polls:     make(map[int64]*domain.ActivePoll),
		players:   make(map[playerKey]*domain.Player),
	}
}

// NewStoreWithClock is test-only for deterministic timestamps.
func NewStoreWithClock(now func() time.Time) *Store {
	s := NewStore()
	s.clock = now
	return s
}

func (s *Store) UpsertGroup(_ context.Context, group domain.Group) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if existing, ok := s.groups[group.ID]; ok {
		existing.Name = group.Name
		return nil
	}
	group.CreatedAt = s.clock()
	s.groups[group.ID] = &group
	return nil
}

func (s *Store) GroupSettings(_ context.Context, groupID int64) (domain.GroupSettings, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if group, ok := s.groups[groupID]; ok {
		return domain.GroupSettings{QuizActive: group.QuizActive, IntervalMinutes: group.IntervalMinutes}, nil
	}
	return domain.GroupSettings{QuizActive: true, IntervalMinutes: 30}, nil
}

func (s *Store) SetQuizActive(_ context.Context, groupID int64, active bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if group, ok := s.groups[groupID]; ok {
		group.QuizActive = active
	}
	return nil
}

func (s *Store) SetInterval(_ context.Context, groupID int64, minutes int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if group, ok := s.groups[groupID]; ok {
		group.IntervalMinutes = minutes
	}
	return nil
}

func (s *Store) ListQuizActiveGroups(_ context.Context) ([]int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var ids []int64
	for id, group := range s.groups {
		if group.QuizActive {
			ids = append(ids, id)
		}
	}
	return ids, nil
}

func (s *Store) ListGroups(_ context.Context) ([]int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ids := make([]int64, 0, len(s.groups))
	for id := range s.groups {
		ids = append(ids, id)
	}
	return ids, nil
}

func (s *Store) UpsertUser(_ context.Context, user domain.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if existing, ok := s.users[user.ID]; ok {
		existing.Username = user.Username
		existing.FirstName = user.FirstName
		return nil
	}
	user.StartedAt = s.clock()
	s.users[user.ID] = &user
	return nil
}

func (s *Store) ListUsers(_ context.Context) ([]int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ids := make([]int64, 0, len(s.users))
	for id := range s.users {
		ids = append(ids, id)
	}
	return ids, nil
}

func (s *Store) NextQuestion(_ context.Context, groupID int64) (*domain.Question, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if len(s.questions) == 0 {
		return nil, nil
	}

	used := s.usage[groupID]
	var unused []*domain.Question
	for id, q := range s.questions {
		if _, ok := used[id]; !ok {
			unused = append(unused, q)
		}
	}
	if len(unused) == 0 {
		// Pool exhausted for this group: recycle and draw from everything.
		delete(s.usage, groupID)
		unused = make([]*domain.Question, 0, len(s.questions))
		for _, q := range s.questions {
			unused = append(unused, q)
		}
	}

	picked := unused[s.rnd.Intn(len(unused))]
	if s.usage[groupID] == nil {
		s.usage[groupID] = make(map[int64]struct{})
	}
	s.usage[groupID][picked.ID] = struct{}{}

	q := *picked
	return &q, nil
}

func (s *Store) AddQuestion(_ context.Context, q domain.Question) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	q.ID = s.nextID
	s.nextID++
	q.CreatedAt = s.clock()
	s.questions[q.ID] = &q
	return q.ID, nil
}

func (s *Store) GetQuestion(_ context.Context, id int64) (*domain.Question, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if question, ok := s.questions[id]; ok {
		q := *question
		return &q, nil
	}
	return nil, nil
}

func (s *Store) DeleteAllQuestions(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.questions = make(map[int64]*domain.Question)
	s.usage = make(map[int64]map[int64]struct{})
	return nil
}

func (s *Store) CountQuestions(_ context.Context) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.questions), nil
}

// UsageCount is exported for tests asserting the recycle property.
func (s *Store) UsageCount(groupID int64) int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.usage[groupID])
}

func (s *Store) SetActivePoll(_ context.Context, poll domain.ActivePoll) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	poll.CreatedAt = s.clock()
	s.polls[poll.GroupID] = &poll
	return nil
}

func (s *Store) ActivePoll(_ context.Context, groupID int64) (*domain.ActivePoll, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if poll, ok := s.polls[groupID]; ok {
		p := *poll
		return &p, nil
	}
	return nil, nil
}

func (s *Store) ActivePollByPollID(_ context.Context, pollID string) (*domain.ActivePoll, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, poll := range s.polls {
		if poll.PollID == pollID {
			p := *poll
			return &p, nil
		}
	}
	return nil, nil
}

func (s *Store) ClearActivePoll(_ context.Context, groupID int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.polls, groupID)
	return nil
}

func (s *Store) UpsertPlayer(_ context.Context, userID, groupID int64, username, firstName string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := playerKey{userID: userID, groupID: groupID}
	if player, ok := s.players[key]; ok {
		player.Username = username
		player.FirstName = firstName
		return nil
	}
	s.players[key] = &domain.Player{
		UserID:    userID,
		GroupID:   groupID,
		Username:  username,
		FirstName: firstName,
	}
	return nil
}

func (s *Store) ApplyVote(_ context.Context, userID, groupID int64, correct bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	player, ok := s.players[playerKey{userID: userID, groupID: groupID}]
	if !ok {
		return nil
	}
	if correct {
		player.Score += 4
		player.CorrectAnswers++
		player.CurrentStreak++
		if player.CurrentStreak > player.MaxStreak {
			player.MaxStreak = player.CurrentStreak
		}
	} else {
		player.Score--
		player.WrongAnswers++
		player.CurrentStreak = 0
	}
	player.LastAnswerTime = s.clock()
	return nil
}

func (s *Store) Leaderboard(_ context.Context, groupID int64, limit int) ([]domain.Player, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var players []domain.Player
	for key, player := range s.players {
		if key.groupID == groupID {
			players = append(players, *player)
		}
	}
	sort.Slice(players, func(i, j int) bool {
		if players[i].Score != players[j].Score {
			return players[i].Score > players[j].Score
		}
		if players[i].CorrectAnswers != players[j].CorrectAnswers {
			return players[i].CorrectAnswers > players[j].CorrectAnswers
		}
		return players[i].UserID < players[j].UserID
	})
	if limit > 0 && len(players) > limit {
		players = players[:limit]
	}
	return players, nil
}

func (s *Store) ResetBoard(_ context.Context, groupID int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for key, player := range s.players {
		if key.groupID != groupID {
			continue
		}
		player.Score = 0
		player.CorrectAnswers = 0
		player.WrongAnswers = 0
		player.CurrentStreak = 0
		player.MaxStreak = 0
		player.LastAnswerTime = time.Time{}
	}
	delete(s.usage, groupID)
	return nil
}
