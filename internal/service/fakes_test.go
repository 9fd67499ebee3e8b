package service

import (
	"context"
	"fmt"
	"maps"
	"slices"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"sudooom.im.chatroom/internal/model"
	"sudooom.im.chatroom/internal/nats"
	"sudooom.im.chatroom/internal/repository"
)

// seqIDs 定长递增 ID，字典序与生成顺序一致
type seqIDs struct {
	n atomic.Int64
}

func (s *seqIDs) NextID() string {
	return fmt.Sprintf("%06d", s.n.Add(1))
}

// memDB 内存数据库，WithinTx 失败时整体回滚
type memDB struct {
	txMu sync.Mutex
	mu   sync.Mutex

	users    map[string]*model.User
	requests map[string]*model.FriendRequest
	groups   map[string]*model.Group
	direct   []*model.DirectMessage
	group    []*model.GroupMessage
}

func newMemDB() *memDB {
	return &memDB{
		users:    map[string]*model.User{},
		requests: map[string]*model.FriendRequest{},
		groups:   map[string]*model.Group{},
	}
}

type txKey struct{}

func (db *memDB) WithinTx(ctx context.Context, fn func(ctx context.Context) error) error {
	if ctx.Value(txKey{}) != nil {
		return fn(ctx)
	}
	db.txMu.Lock()
	defer db.txMu.Unlock()

	db.mu.Lock()
	users := cloneMap(db.users, cloneUser)
	requests := cloneMap(db.requests, func(r *model.FriendRequest) *model.FriendRequest {
		c := *r
		return &c
	})
	groups := cloneMap(db.groups, cloneGroup)
	direct := slices.Clone(db.direct)
	group := slices.Clone(db.group)
	db.mu.Unlock()

	if err := fn(context.WithValue(ctx, txKey{}, true)); err != nil {
		db.mu.Lock()
		db.users, db.requests, db.groups, db.direct, db.group = users, requests, groups, direct, group
		db.mu.Unlock()
		return err
	}
	return nil
}

func cloneMap[V any](m map[string]V, clone func(V) V) map[string]V {
	out := make(map[string]V, len(m))
	for k, v := range m {
		out[k] = clone(v)
	}
	return out
}

func cloneUser(u *model.User) *model.User {
	c := *u
	c.Friends = slices.Clone(u.Friends)
	c.Groups = slices.Clone(u.Groups)
	return &c
}

func cloneGroup(g *model.Group) *model.Group {
	c := *g
	c.Members = slices.Clone(g.Members)
	c.Roles = maps.Clone(g.Roles)
	c.MemberRoles = maps.Clone(g.MemberRoles)
	if c.Roles == nil {
		c.Roles = map[string]model.Role{}
	}
	if c.MemberRoles == nil {
		c.MemberRoles = map[string]string{}
	}
	return &c
}

// memUsers 实现 UserStore
type memUsers struct{ db *memDB }

func (s memUsers) Create(_ context.Context, user *model.User) error {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	for _, u := range s.db.users {
		if u.Username == user.Username {
			return repository.ErrUsernameExists
		}
		if u.Email == user.Email {
			return repository.ErrEmailExists
		}
	}
	user.CreateAt = time.Now()
	user.UpdateAt = user.CreateAt
	s.db.users[user.ID] = cloneUser(user)
	return nil
}

func (s memUsers) GetByID(_ context.Context, id string) (*model.User, error) {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	u, ok := s.db.users[id]
	if !ok {
		return nil, repository.ErrUserNotFound
	}
	return cloneUser(u), nil
}

func (s memUsers) find(match func(*model.User) bool) (*model.User, error) {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	for _, u := range s.db.users {
		if match(u) {
			return cloneUser(u), nil
		}
	}
	return nil, repository.ErrUserNotFound
}

func (s memUsers) GetByUsername(_ context.Context, username string) (*model.User, error) {
	return s.find(func(u *model.User) bool { return u.Username == username })
}

func (s memUsers) GetByEmail(_ context.Context, email string) (*model.User, error) {
	return s.find(func(u *model.User) bool { return u.Email == email })
}

func (s memUsers) GetByIDs(_ context.Context, ids []string) ([]*model.User, error) {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	out := make([]*model.User, 0, len(ids))
	for _, id := range ids {
		if u, ok := s.db.users[id]; ok {
			out = append(out, cloneUser(u))
		}
	}
	return out, nil
}

func (s memUsers) LockByIDs(_ context.Context, ids []string) (string, error) {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	for _, id := range ids {
		if _, ok := s.db.users[id]; !ok {
			return id, repository.ErrUserNotFound
		}
	}
	return "", nil
}

func (s memUsers) update(id string, fn func(u *model.User)) (*model.User, error) {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	u, ok := s.db.users[id]
	if !ok {
		return nil, repository.ErrUserNotFound
	}
	fn(u)
	u.UpdateAt = time.Now()
	return cloneUser(u), nil
}

func (s memUsers) UpdateProfile(_ context.Context, id, username, avatarURL string) (*model.User, error) {
	if username != "" {
		s.db.mu.Lock()
		for _, u := range s.db.users {
			if u.ID != id && u.Username == username {
				s.db.mu.Unlock()
				return nil, repository.ErrUsernameExists
			}
		}
		s.db.mu.Unlock()
	}
	return s.update(id, func(u *model.User) {
		if username != "" {
			u.Username = username
		}
		if avatarURL != "" {
			u.AvatarURL = avatarURL
		}
	})
}

func (s memUsers) UpdateBackground(_ context.Context, id, backgroundURL string) (*model.User, error) {
	return s.update(id, func(u *model.User) { u.BackgroundURL = backgroundURL })
}

func (s memUsers) AddFriend(_ context.Context, userID, friendID string) error {
	_, err := s.update(userID, func(u *model.User) { u.AddFriend(friendID) })
	return err
}

func (s memUsers) RemoveFriend(_ context.Context, userID, friendID string) error {
	_, err := s.update(userID, func(u *model.User) { u.RemoveFriend(friendID) })
	return err
}

func (s memUsers) AddGroup(_ context.Context, userID, groupID string) error {
	_, err := s.update(userID, func(u *model.User) { u.JoinGroup(groupID) })
	return err
}

func (s memUsers) RemoveGroup(_ context.Context, userID, groupID string) error {
	_, err := s.update(userID, func(u *model.User) { u.LeaveGroup(groupID) })
	return err
}

// memFriends 实现 FriendStore
type memFriends struct{ db *memDB }

func (s memFriends) CreateRequest(_ context.Context, request *model.FriendRequest) error {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	for _, r := range s.db.requests {
		if r.FromUserID == request.FromUserID && r.ToUserID == request.ToUserID {
			return repository.ErrRequestPending
		}
	}
	request.CreateAt = time.Now()
	c := *request
	s.db.requests[request.ID] = &c
	return nil
}

func (s memFriends) GetRequestByID(_ context.Context, id string) (*model.FriendRequest, error) {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	r, ok := s.db.requests[id]
	if !ok {
		return nil, repository.ErrFriendRequestNotFound
	}
	c := *r
	return &c, nil
}

func (s memFriends) LockRequest(ctx context.Context, id string) (*model.FriendRequest, error) {
	return s.GetRequestByID(ctx, id)
}

func (s memFriends) HasPendingBetween(_ context.Context, a, b string) (bool, error) {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	for _, r := range s.db.requests {
		if (r.FromUserID == a && r.ToUserID == b) || (r.FromUserID == b && r.ToUserID == a) {
			return true, nil
		}
	}
	return false, nil
}

func (s memFriends) DeleteRequest(_ context.Context, id string) error {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	if _, ok := s.db.requests[id]; !ok {
		return repository.ErrFriendRequestNotFound
	}
	delete(s.db.requests, id)
	return nil
}

func (s memFriends) ListIncoming(_ context.Context, toUserID string) ([]*model.FriendRequest, error) {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	out := make([]*model.FriendRequest, 0)
	for _, r := range s.db.requests {
		if r.ToUserID == toUserID {
			c := *r
			out = append(out, &c)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// memGroups 实现 GroupStore
type memGroups struct{ db *memDB }

func (s memGroups) Create(_ context.Context, group *model.Group) error {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	group.CreateAt = time.Now()
	group.UpdateAt = group.CreateAt
	s.db.groups[group.ID] = cloneGroup(group)
	return nil
}

func (s memGroups) GetByID(_ context.Context, id string) (*model.Group, error) {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	g, ok := s.db.groups[id]
	if !ok {
		return nil, repository.ErrGroupNotFound
	}
	return cloneGroup(g), nil
}

func (s memGroups) LockByID(ctx context.Context, id string) (*model.Group, error) {
	return s.GetByID(ctx, id)
}

func (s memGroups) ListByMember(_ context.Context, userID string) ([]*model.Group, error) {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	out := make([]*model.Group, 0)
	for _, g := range s.db.groups {
		if g.IsMember(userID) {
			out = append(out, cloneGroup(g))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s memGroups) Save(_ context.Context, group *model.Group) error {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	if _, ok := s.db.groups[group.ID]; !ok {
		return repository.ErrGroupNotFound
	}
	group.UpdateAt = time.Now()
	s.db.groups[group.ID] = cloneGroup(group)
	return nil
}

// memMessages 实现 MessageStore，时间戳在同一日志内严格递增
type memMessages struct{ db *memDB }

func nextStamp(last time.Time) time.Time {
	now := time.Now()
	if !last.IsZero() && !now.After(last) {
		return last.Add(time.Microsecond)
	}
	return now
}

func (s memMessages) InsertDirect(_ context.Context, msg *model.DirectMessage) error {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	var last time.Time
	for _, m := range s.db.direct {
		if m.ConversationID == msg.ConversationID && m.CreateAt.After(last) {
			last = m.CreateAt
		}
	}
	msg.CreateAt = nextStamp(last)
	c := *msg
	s.db.direct = append(s.db.direct, &c)
	return nil
}

func (s memMessages) ListDirect(_ context.Context, conversationID string, after time.Time, limit int) ([]*model.DirectMessage, error) {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	out := make([]*model.DirectMessage, 0)
	for _, m := range s.db.direct {
		if m.ConversationID == conversationID && m.CreateAt.After(after) {
			c := *m
			out = append(out, &c)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreateAt.Before(out[j].CreateAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s memMessages) InsertGroup(_ context.Context, msg *model.GroupMessage) error {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	var last time.Time
	for _, m := range s.db.group {
		if m.GroupID == msg.GroupID && m.CreateAt.After(last) {
			last = m.CreateAt
		}
	}
	msg.CreateAt = nextStamp(last)
	c := *msg
	s.db.group = append(s.db.group, &c)
	return nil
}

func (s memMessages) GetGroupMessage(_ context.Context, groupID, id string) (*model.GroupMessage, error) {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	for _, m := range s.db.group {
		if m.GroupID == groupID && m.ID == id {
			c := *m
			return &c, nil
		}
	}
	return nil, repository.ErrMessageNotFound
}

func (s memMessages) ListGroup(_ context.Context, groupID string, after time.Time, limit int) ([]*model.GroupMessage, error) {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	out := make([]*model.GroupMessage, 0)
	for _, m := range s.db.group {
		if m.GroupID == groupID && m.CreateAt.After(after) {
			c := *m
			out = append(out, &c)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreateAt.Before(out[j].CreateAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s memMessages) DeleteGroupMessage(_ context.Context, groupID, id string) error {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	for i, m := range s.db.group {
		if m.GroupID == groupID && m.ID == id {
			s.db.group = slices.Delete(s.db.group, i, i+1)
			return nil
		}
	}
	return repository.ErrMessageNotFound
}

// memTokens 实现 TokenStore
type memTokens struct {
	mu       sync.Mutex
	sessions map[string]*repository.SessionInfo
}

func newMemTokens() *memTokens {
	return &memTokens{sessions: map[string]*repository.SessionInfo{}}
}

func (s *memTokens) SaveToken(_ context.Context, info *repository.SessionInfo, accessToken string, _ time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for token, existing := range s.sessions {
		if existing.UserID == info.UserID && existing.Platform == info.Platform {
			delete(s.sessions, token)
		}
	}
	c := *info
	s.sessions[accessToken] = &c
	return nil
}

func (s *memTokens) GetSession(_ context.Context, accessToken string) (*repository.SessionInfo, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	info, ok := s.sessions[accessToken]
	if !ok {
		return nil, nil
	}
	c := *info
	return &c, nil
}

func (s *memTokens) DeleteToken(_ context.Context, _, _ string, accessToken string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.sessions, accessToken)
	return nil
}

// memBus 同时实现 nats.Publisher 与 nats.Feed
type memBus struct {
	mu        sync.Mutex
	subs      map[string][]*memSub
	published []published
}

type published struct {
	subject string
	event   model.ChangeEvent
}

func newMemBus() *memBus {
	return &memBus{subs: map[string][]*memSub{}}
}

func (b *memBus) Publish(_ context.Context, subject string, ev model.ChangeEvent) error {
	b.mu.Lock()
	b.published = append(b.published, published{subject: subject, event: ev})
	subs := slices.Clone(b.subs[subject])
	b.mu.Unlock()

	for _, s := range subs {
		select {
		case s.events <- ev:
		case <-s.done:
		}
	}
	return nil
}

func (b *memBus) Subscribe(_ context.Context, subject string, buffer int) (nats.FeedSubscription, error) {
	s := &memSub{
		bus:     b,
		subject: subject,
		events:  make(chan model.ChangeEvent, buffer),
		done:    make(chan struct{}),
	}
	b.mu.Lock()
	b.subs[subject] = append(b.subs[subject], s)
	b.mu.Unlock()
	return s, nil
}

// active 当前订阅数
func (b *memBus) active(subject string) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.subs[subject])
}

// events 某个 subject 上发布过的事件类型
func (b *memBus) events(subject string) []model.ChangeType {
	b.mu.Lock()
	defer b.mu.Unlock()
	var out []model.ChangeType
	for _, p := range b.published {
		if p.subject == subject {
			out = append(out, p.event.Type)
		}
	}
	return out
}

type memSub struct {
	bus     *memBus
	subject string
	events  chan model.ChangeEvent
	done    chan struct{}
	once    sync.Once
}

func (s *memSub) Events() <-chan model.ChangeEvent { return s.events }
func (s *memSub) Done() <-chan struct{}            { return s.done }

func (s *memSub) Close() error {
	s.once.Do(func() {
		close(s.done)
		s.bus.mu.Lock()
		s.bus.subs[s.subject] = slices.DeleteFunc(s.bus.subs[s.subject], func(o *memSub) bool { return o == s })
		s.bus.mu.Unlock()
	})
	return nil
}

// memBlobs 实现 storage.BlobStore
type memBlobs struct {
	mu      sync.Mutex
	objects map[string][]byte
	types   map[string]string
	err     error
}

func newMemBlobs() *memBlobs {
	return &memBlobs{objects: map[string][]byte{}, types: map[string]string{}}
}

func (b *memBlobs) Upload(_ context.Context, key string, data []byte, contentType string) (string, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.err != nil {
		return "", b.err
	}
	b.objects[key] = slices.Clone(data)
	b.types[key] = contentType
	return key, nil
}

func (b *memBlobs) URL(ref string) string {
	return "https://blob.test/" + ref
}

func (b *memBlobs) keys() []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return slices.Sorted(maps.Keys(b.objects))
}
