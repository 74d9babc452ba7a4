package reveal

import (
	"context"
	"strconv"
	"sync"
	"time"
)

// fakeStore is an in-memory cache.Store. It counts every call so tests can
// assert the zero-commands-when-idle property, and can be forced to fail to
// exercise transient-error paths.
type fakeStore struct {
	mu      sync.Mutex
	hashes  map[string]map[string]string
	sets    map[string]map[string]struct{}
	lists   map[string][]string
	strings map[string]string
	expiry  map[string]time.Time

	calls   int
	failErr error
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		hashes:  make(map[string]map[string]string),
		sets:    make(map[string]map[string]struct{}),
		lists:   make(map[string][]string),
		strings: make(map[string]string),
		expiry:  make(map[string]time.Time),
	}
}

func (f *fakeStore) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

func (f *fakeStore) failWith(err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.failErr = err
}

// expireNow force-expires a string key, standing in for TTL passage.
func (f *fakeStore) expireNow(key string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.strings, key)
	delete(f.expiry, key)
}

func (f *fakeStore) enter() error {
	f.calls++
	return f.failErr
}

func (f *fakeStore) HSetAll(ctx context.Context, key string, fields map[string]string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.enter(); err != nil {
		return err
	}
	h, ok := f.hashes[key]
	if !ok {
		h = make(map[string]string)
		f.hashes[key] = h
	}
	for k, v := range fields {
		h[k] = v
	}
	return nil
}

func (f *fakeStore) HGetAll(ctx context.Context, key string) (map[string]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.enter(); err != nil {
		return nil, err
	}
	out := make(map[string]string, len(f.hashes[key]))
	for k, v := range f.hashes[key] {
		out[k] = v
	}
	return out, nil
}

func (f *fakeStore) HSet(ctx context.Context, key, field, value string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.enter(); err != nil {
		return err
	}
	h, ok := f.hashes[key]
	if !ok {
		h = make(map[string]string)
		f.hashes[key] = h
	}
	h[field] = value
	return nil
}

func (f *fakeStore) HIncrBy(ctx context.Context, key, field string, incr int64) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.enter(); err != nil {
		return 0, err
	}
	h, ok := f.hashes[key]
	if !ok {
		h = make(map[string]string)
		f.hashes[key] = h
	}
	n, _ := strconv.ParseInt(h[field], 10, 64)
	n += incr
	h[field] = strconv.FormatInt(n, 10)
	return n, nil
}

func (f *fakeStore) SAdd(ctx context.Context, key, member string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.enter(); err != nil {
		return false, err
	}
	s, ok := f.sets[key]
	if !ok {
		s = make(map[string]struct{})
		f.sets[key] = s
	}
	if _, exists := s[member]; exists {
		return false, nil
	}
	s[member] = struct{}{}
	return true, nil
}

func (f *fakeStore) SRem(ctx context.Context, key string, members ...string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.enter(); err != nil {
		return err
	}
	for _, m := range members {
		delete(f.sets[key], m)
	}
	return nil
}

func (f *fakeStore) SMembers(ctx context.Context, key string) ([]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.enter(); err != nil {
		return nil, err
	}
	out := make([]string, 0, len(f.sets[key]))
	for m := range f.sets[key] {
		out = append(out, m)
	}
	return out, nil
}

func (f *fakeStore) SIsMember(ctx context.Context, key, member string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.enter(); err != nil {
		return false, err
	}
	_, ok := f.sets[key][member]
	return ok, nil
}

func (f *fakeStore) LPush(ctx context.Context, key, value string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.enter(); err != nil {
		return err
	}
	f.lists[key] = append([]string{value}, f.lists[key]...)
	return nil
}

func (f *fakeStore) LTrim(ctx context.Context, key string, start, stop int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.enter(); err != nil {
		return err
	}
	list := f.lists[key]
	if start < 0 {
		start = 0
	}
	if stop >= int64(len(list)) {
		stop = int64(len(list)) - 1
	}
	if start > stop {
		f.lists[key] = nil
		return nil
	}
	f.lists[key] = list[start : stop+1]
	return nil
}

func (f *fakeStore) LRange(ctx context.Context, key string, start, stop int64) ([]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.enter(); err != nil {
		return nil, err
	}
	list := f.lists[key]
	if start < 0 {
		start = 0
	}
	if stop >= int64(len(list)) {
		stop = int64(len(list)) - 1
	}
	if start > stop {
		return nil, nil
	}
	out := make([]string, stop-start+1)
	copy(out, list[start:stop+1])
	return out, nil
}

func (f *fakeStore) Set(ctx context.Context, key, value string, ttl time.Duration) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.enter(); err != nil {
		return err
	}
	f.strings[key] = value
	f.expiry[key] = time.Now().Add(ttl)
	return nil
}

func (f *fakeStore) SetNX(ctx context.Context, key, value string, ttl time.Duration) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.enter(); err != nil {
		return false, err
	}
	if exp, ok := f.expiry[key]; ok && time.Now().After(exp) {
		delete(f.strings, key)
		delete(f.expiry, key)
	}
	if _, exists := f.strings[key]; exists {
		return false, nil
	}
	f.strings[key] = value
	f.expiry[key] = time.Now().Add(ttl)
	return true, nil
}

func (f *fakeStore) GetDel(ctx context.Context, key string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.enter(); err != nil {
		return "", err
	}
	val := f.strings[key]
	delete(f.strings, key)
	delete(f.expiry, key)
	return val, nil
}

func (f *fakeStore) Exists(ctx context.Context, key string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.enter(); err != nil {
		return false, err
	}
	if _, ok := f.hashes[key]; ok {
		return true, nil
	}
	if _, ok := f.sets[key]; ok {
		return true, nil
	}
	if _, ok := f.lists[key]; ok {
		return true, nil
	}
	_, ok := f.strings[key]
	return ok, nil
}

func (f *fakeStore) Expire(ctx context.Context, key string, ttl time.Duration) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.enter(); err != nil {
		return err
	}
	f.expiry[key] = time.Now().Add(ttl)
	return nil
}

// fakePublisher records published frames per topic.
type fakePublisher struct {
	mu     sync.Mutex
	frames map[string][]interface{}
}

func newFakePublisher() *fakePublisher {
	return &fakePublisher{frames: make(map[string][]interface{})}
}

func (p *fakePublisher) Publish(topic string, payload interface{}) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.frames[topic] = append(p.frames[topic], payload)
}

func (p *fakePublisher) published(topic string) []interface{} {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]interface{}{}, p.frames[topic]...)
}

// fakeArchiver records archive writes.
type fakeArchiver struct {
	mu       sync.Mutex
	sessions []Session
	results  []Session
	failErr  error
}

func (a *fakeArchiver) SaveSession(ctx context.Context, s Session) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.failErr != nil {
		return a.failErr
	}
	a.sessions = append(a.sessions, s)
	return nil
}

func (a *fakeArchiver) SaveResults(ctx context.Context, s Session, votes VoteCount, chat []ChatMessage, endedAt time.Time) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.failErr != nil {
		return a.failErr
	}
	a.results = append(a.results, s)
	return nil
}

func (a *fakeArchiver) GetReveal(ctx context.Context, sessionID string) (map[string]interface{}, error) {
	return nil, nil
}

func (a *fakeArchiver) resultCount() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.results)
}
