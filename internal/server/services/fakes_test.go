package services

import (
	"bytes"
	"context"
	"database/sql"
	"fmt"
	"image"
	"image/color"
	"image/png"
	"sort"
	"strings"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/dmitrijs2005/keycatalog/internal/common"
	"github.com/dmitrijs2005/keycatalog/internal/dbx"
	"github.com/dmitrijs2005/keycatalog/internal/ident"
	"github.com/dmitrijs2005/keycatalog/internal/logging"
	"github.com/dmitrijs2005/keycatalog/internal/server/artifacts"
	"github.com/dmitrijs2005/keycatalog/internal/server/auth"
	"github.com/dmitrijs2005/keycatalog/internal/server/models"
	"github.com/dmitrijs2005/keycatalog/internal/server/repositories/keys"
	"github.com/dmitrijs2005/keycatalog/internal/server/repositories/lines"
	"github.com/dmitrijs2005/keycatalog/internal/server/repositories/slots"
	"github.com/dmitrijs2005/keycatalog/internal/server/repositories/suppliers"
	"github.com/dmitrijs2005/keycatalog/internal/server/repositories/users"
)

type errBoom struct{}

func (errBoom) Error() string { return "boom" }

// --- sqlmock helpers ---

func newSQLMockDB(t *testing.T) (*sql.DB, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New error: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	return db, mock
}

func expectCommits(mock sqlmock.Sqlmock, n int) {
	for i := 0; i < n; i++ {
		mock.ExpectBegin()
		mock.ExpectCommit()
	}
}

func expectRollback(mock sqlmock.Sqlmock) {
	mock.ExpectBegin()
	mock.ExpectRollback()
}

// --- principals ---

func as(role ...auth.Permission) context.Context {
	return auth.WithPrincipal(context.Background(), auth.Principal{UserID: "u-test", Nickname: "tester", Role: auth.NewPermissions(role...)})
}

var (
	adminCtx  = as(auth.Admin)
	writerCtx = as(auth.Write)
	readerCtx = as(auth.Read)
)

// --- in-memory catalog ---

// memCatalog backs every repository with maps. Transactions are not
// modelled; the sqlmock database only checks that they are opened and
// closed.
type memCatalog struct {
	suppliers map[string]*models.Supplier
	lines     map[string]*models.Line
	keys      map[string]*models.Key
	users     map[string]*models.User
	seq       int
	clock     time.Time

	upsertErr error
}

func newMemCatalog() *memCatalog {
	return &memCatalog{
		suppliers: map[string]*models.Supplier{},
		lines:     map[string]*models.Line{},
		keys:      map[string]*models.Key{},
		users:     map[string]*models.User{},
		clock:     time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
	}
}

func (m *memCatalog) nextID(kind string) string {
	m.seq++
	return fmt.Sprintf("%s-%d", kind, m.seq)
}

func (m *memCatalog) tick() time.Time {
	m.clock = m.clock.Add(time.Second)
	return m.clock
}

func (m *memCatalog) RunMigrations(context.Context, *sql.DB) error { return nil }
func (m *memCatalog) Suppliers(dbx.DBTX) suppliers.Repository      { return memSuppliers{m} }
func (m *memCatalog) Lines(dbx.DBTX) lines.Repository              { return memLines{m} }
func (m *memCatalog) Keys(dbx.DBTX) keys.Repository                { return memKeys{m} }
func (m *memCatalog) Slots(dbx.DBTX) slots.Repository              { return memSlots{m} }
func (m *memCatalog) Users(dbx.DBTX) users.Repository              { return memUsers{m} }

// seed builds supplier → line → key and returns the key.
func (m *memCatalog) seed(t *testing.T, supplier, line, code string, images ...models.ImageSlot) *models.Key {
	t.Helper()
	sup, err := ident.NormalizeSupplier(supplier)
	if err != nil {
		t.Fatalf("seed supplier: %v", err)
	}
	var s *models.Supplier
	for _, x := range m.suppliers {
		if x.Identifier == sup {
			s = x
		}
	}
	if s == nil {
		s = &models.Supplier{ID: m.nextID("sup"), Identifier: sup}
		m.suppliers[s.ID] = s
	}
	var l *models.Line
	for _, x := range m.lines {
		if x.Identifier == line && x.SupplierID == s.ID {
			l = x
		}
	}
	if l == nil {
		l = &models.Line{ID: m.nextID("line"), Identifier: line, SupplierID: s.ID, SupplierIdentifier: s.Identifier, Name: "line " + line}
		m.lines[l.ID] = l
	}
	k := &models.Key{ID: m.nextID("key"), LineID: l.ID, Code: code, Desc: "key " + code, Images: images, CreatedAt: m.tick()}
	m.keys[k.ID] = k
	return m.view(k)
}

// view returns a detached copy of k with the codes of its line filled in.
func (m *memCatalog) view(k *models.Key) *models.Key {
	c := *k
	c.Images = append([]models.ImageSlot{}, k.Images...)
	sort.Slice(c.Images, func(i, j int) bool { return c.Images[i].IDN < c.Images[j].IDN })
	if l, ok := m.lines[k.LineID]; ok {
		c.LineIdentifier = l.Identifier
		c.SupplierIdentifier = l.SupplierIdentifier
	}
	return &c
}

func (m *memCatalog) sortedKeys() []*models.Key {
	out := make([]*models.Key, 0, len(m.keys))
	for _, k := range m.keys {
		out = append(out, m.view(k))
	}
	sort.Slice(out, func(i, j int) bool {
		if a, b := out[i].KeyCode(), out[j].KeyCode(); a != b {
			return a < b
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out
}

func notFound(what, id string) error {
	return fmt.Errorf("%s %s: %w", what, id, common.ErrorNotFound)
}

// suppliers

type memSuppliers struct{ m *memCatalog }

func (r memSuppliers) Create(_ context.Context, s *models.Supplier) (*models.Supplier, error) {
	for _, x := range r.m.suppliers {
		if x.Identifier == s.Identifier {
			return nil, fmt.Errorf("create supplier: %w", common.ErrorConflict)
		}
	}
	c := *s
	c.ID = r.m.nextID("sup")
	r.m.suppliers[c.ID] = &c
	return &c, nil
}

func (r memSuppliers) Update(_ context.Context, s *models.Supplier) (*models.Supplier, error) {
	x, ok := r.m.suppliers[s.ID]
	if !ok {
		return nil, notFound("supplier", s.ID)
	}
	x.Identifier = s.Identifier
	for _, l := range r.m.lines {
		if l.SupplierID == x.ID {
			l.SupplierIdentifier = x.Identifier
		}
	}
	c := *x
	return &c, nil
}

func (r memSuppliers) Delete(_ context.Context, id string) error {
	if _, ok := r.m.suppliers[id]; !ok {
		return notFound("supplier", id)
	}
	for _, l := range r.m.lines {
		if l.SupplierID == id {
			return fmt.Errorf("%w: supplier has lines", common.ErrorConflict)
		}
	}
	delete(r.m.suppliers, id)
	return nil
}

func (r memSuppliers) GetByID(_ context.Context, id string) (*models.Supplier, error) {
	x, ok := r.m.suppliers[id]
	if !ok {
		return nil, notFound("supplier", id)
	}
	c := *x
	return &c, nil
}

func (r memSuppliers) GetByIdentifier(_ context.Context, identifier string) (*models.Supplier, error) {
	for _, x := range r.m.suppliers {
		if x.Identifier == identifier {
			c := *x
			return &c, nil
		}
	}
	return nil, notFound("supplier", identifier)
}

func (r memSuppliers) List(context.Context) ([]models.Supplier, error) {
	out := []models.Supplier{}
	for _, x := range r.m.suppliers {
		out = append(out, *x)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Identifier < out[j].Identifier })
	return out, nil
}

// lines

type memLines struct{ m *memCatalog }

func (r memLines) Create(_ context.Context, l *models.Line) (*models.Line, error) {
	for _, x := range r.m.lines {
		if x.Identifier == l.Identifier && x.SupplierID == l.SupplierID {
			return nil, fmt.Errorf("create line: %w", common.ErrorConflict)
		}
	}
	c := *l
	c.ID = r.m.nextID("line")
	r.m.lines[c.ID] = &c
	out := c
	return &out, nil
}

func (r memLines) Update(_ context.Context, l *models.Line) (*models.Line, error) {
	if _, ok := r.m.lines[l.ID]; !ok {
		return nil, notFound("line", l.ID)
	}
	c := *l
	r.m.lines[l.ID] = &c
	out := c
	return &out, nil
}

func (r memLines) Delete(_ context.Context, id string) error {
	if _, ok := r.m.lines[id]; !ok {
		return notFound("line", id)
	}
	for _, k := range r.m.keys {
		if k.LineID == id {
			return fmt.Errorf("%w: line has keys", common.ErrorConflict)
		}
	}
	delete(r.m.lines, id)
	return nil
}

func (r memLines) GetByID(_ context.Context, id string) (*models.Line, error) {
	x, ok := r.m.lines[id]
	if !ok {
		return nil, notFound("line", id)
	}
	c := *x
	return &c, nil
}

func (r memLines) GetByPair(_ context.Context, identifier, supplierID string) (*models.Line, error) {
	for _, x := range r.m.lines {
		if x.Identifier == identifier && x.SupplierID == supplierID {
			c := *x
			return &c, nil
		}
	}
	return nil, notFound("line", identifier)
}

func (r memLines) CountBySupplier(_ context.Context, supplierID string) (int, error) {
	n := 0
	for _, x := range r.m.lines {
		if x.SupplierID == supplierID {
			n++
		}
	}
	return n, nil
}

func (r memLines) DeleteBySupplier(_ context.Context, supplierID string) (int64, error) {
	var n int64
	for id, x := range r.m.lines {
		if x.SupplierID == supplierID {
			delete(r.m.lines, id)
			n++
		}
	}
	return n, nil
}

func (r memLines) matching(prefix ident.Prefix) []models.Line {
	out := []models.Line{}
	for _, x := range r.m.lines {
		if strings.HasPrefix(x.Identifier, prefix.Line) && strings.HasPrefix(x.SupplierIdentifier, prefix.Supplier) {
			out = append(out, *x)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Code() < out[j].Code() })
	return out
}

func (r memLines) Search(_ context.Context, prefix ident.Prefix, limit, offset int, withKeyCount bool) ([]models.Line, error) {
	all := r.matching(prefix)
	if offset >= len(all) {
		return []models.Line{}, nil
	}
	all = all[offset:min(offset+limit, len(all))]
	if withKeyCount {
		for i := range all {
			n, _ := memKeys(r).CountByLine(context.Background(), all[i].ID)
			all[i].KeyCount = &n
		}
	}
	return all, nil
}

func (r memLines) Count(_ context.Context, prefix ident.Prefix) (int, error) {
	return len(r.matching(prefix)), nil
}

// keys

type memKeys struct{ m *memCatalog }

func (r memKeys) Create(_ context.Context, k *models.Key) (*models.Key, error) {
	for _, x := range r.m.keys {
		if x.LineID == k.LineID && x.Code == k.Code {
			return nil, fmt.Errorf("create key: %w", common.ErrorConflict)
		}
	}
	c := *k
	c.ID = r.m.nextID("key")
	c.Images = []models.ImageSlot{}
	c.CreatedAt = r.m.tick()
	r.m.keys[c.ID] = &c
	return r.m.view(&c), nil
}

func (r memKeys) Update(_ context.Context, k *models.Key) (*models.Key, error) {
	x, ok := r.m.keys[k.ID]
	if !ok {
		return nil, notFound("key", k.ID)
	}
	x.LineID, x.Code, x.Desc = k.LineID, k.Code, k.Desc
	return r.m.view(x), nil
}

func (r memKeys) Delete(_ context.Context, id string) error {
	if _, ok := r.m.keys[id]; !ok {
		return notFound("key", id)
	}
	delete(r.m.keys, id)
	return nil
}

func (r memKeys) GetByID(_ context.Context, id string) (*models.Key, error) {
	x, ok := r.m.keys[id]
	if !ok {
		return nil, notFound("key", id)
	}
	return r.m.view(x), nil
}

func (r memKeys) CountByLine(_ context.Context, lineID string) (int, error) {
	n := 0
	for _, x := range r.m.keys {
		if x.LineID == lineID {
			n++
		}
	}
	return n, nil
}

func (r memKeys) DeleteByLine(_ context.Context, lineID string) (int64, error) {
	var n int64
	for id, x := range r.m.keys {
		if x.LineID == lineID {
			delete(r.m.keys, id)
			n++
		}
	}
	return n, nil
}

func (r memKeys) DeleteBySupplier(_ context.Context, supplierID string) (int64, error) {
	var n int64
	for id, x := range r.m.keys {
		if l, ok := r.m.lines[x.LineID]; ok && l.SupplierID == supplierID {
			delete(r.m.keys, id)
			n++
		}
	}
	return n, nil
}

func (r memKeys) match(k *models.Key, f models.KeyFilter) bool {
	if !strings.HasPrefix(k.LineIdentifier, f.Prefix.Line) ||
		!strings.HasPrefix(k.SupplierIdentifier, f.Prefix.Supplier) ||
		!strings.HasPrefix(k.Code, f.Prefix.Code) {
		return false
	}
	if f.Desc != "" && !strings.Contains(strings.ToLower(k.Desc), strings.ToLower(f.Desc)) {
		return false
	}
	if f.LineID != "" && k.LineID != f.LineID {
		return false
	}
	if f.Status != nil {
		found := false
		for _, s := range k.Images {
			if s.Status == *f.Status && (f.SlotIndex == nil || s.IDN == *f.SlotIndex) {
				found = true
			}
		}
		return found
	}
	return true
}

func (r memKeys) filtered(f models.KeyFilter) []models.Key {
	out := []models.Key{}
	for _, k := range r.m.sortedKeys() {
		if r.match(k, f) {
			out = append(out, *k)
		}
	}
	return out
}

func (r memKeys) Search(_ context.Context, f models.KeyFilter, limit, offset int) ([]models.Key, error) {
	all := r.filtered(f)
	if offset >= len(all) {
		return []models.Key{}, nil
	}
	return all[offset:min(offset+limit, len(all))], nil
}

func (r memKeys) Count(_ context.Context, f models.KeyFilter) (int, error) {
	return len(r.filtered(f)), nil
}

func (r memKeys) Stats(_ context.Context, f models.KeyFilter) (models.StatusStats, error) {
	var st models.StatusStats
	for _, k := range r.filtered(f) {
		st.TotalCount++
		saved := false
		for _, s := range k.Images {
			st.Histogram[s.Status]++
			saved = saved || s.Status == models.StatusSaved
		}
		if saved {
			st.SuccessCount++
		}
	}
	if st.TotalCount > 0 {
		st.SuccessRate = float64(st.SuccessCount) / float64(st.TotalCount)
	}
	return st, nil
}

func (r memKeys) Neighbour(_ context.Context, code string, forward bool) (*models.Key, error) {
	all := r.m.sortedKeys()
	if forward {
		for _, k := range all {
			if k.KeyCode() > code {
				return k, nil
			}
		}
	} else {
		for i := len(all) - 1; i >= 0; i-- {
			if all[i].KeyCode() < code {
				return all[i], nil
			}
		}
	}
	return nil, notFound("key after", code)
}

// slots

type memSlots struct{ m *memCatalog }

func (r memSlots) find(keyID string, idN int) (*models.Key, int) {
	k, ok := r.m.keys[keyID]
	if !ok {
		return nil, -1
	}
	for i, s := range k.Images {
		if s.IDN == idN {
			return k, i
		}
	}
	return k, -1
}

func (r memSlots) GetForUpdate(_ context.Context, keyID string, idN int) (*models.ImageSlot, error) {
	k, i := r.find(keyID, idN)
	if k == nil || i < 0 {
		return nil, notFound("slot", keyID)
	}
	s := k.Images[i]
	return &s, nil
}

func (r memSlots) Upsert(_ context.Context, keyID string, slot models.ImageSlot) error {
	if r.m.upsertErr != nil {
		return r.m.upsertErr
	}
	k, i := r.find(keyID, slot.IDN)
	if k == nil {
		return notFound("key", keyID)
	}
	if i < 0 {
		k.Images = append(k.Images, slot)
	} else {
		k.Images[i] = slot
	}
	return nil
}

func (r memSlots) DeletePreFinal(_ context.Context, keyID string, idN int) (bool, error) {
	k, i := r.find(keyID, idN)
	if k == nil || i < 0 || !k.Images[i].Status.PreFinal() {
		return false, nil
	}
	k.Images = append(k.Images[:i], k.Images[i+1:]...)
	return true, nil
}

func (r memSlots) DeleteSaved(_ context.Context, keyID string, idN int) (*models.ImageSlot, error) {
	k, i := r.find(keyID, idN)
	if k == nil || i < 0 || k.Images[i].Status != models.StatusSaved {
		return nil, notFound("saved slot", keyID)
	}
	s := k.Images[i]
	k.Images = append(k.Images[:i], k.Images[i+1:]...)
	return &s, nil
}

func (r memSlots) inScope(k *models.Key, scope models.SlotScope) bool {
	switch {
	case scope.KeyID != "":
		return k.ID == scope.KeyID
	case scope.LineID != "":
		return k.LineID == scope.LineID
	case scope.SupplierID != "":
		l, ok := r.m.lines[k.LineID]
		return ok && l.SupplierID == scope.SupplierID
	default:
		return len(k.Images) > 0
	}
}

func (r memSlots) Snapshot(_ context.Context, scope models.SlotScope) ([]models.SlotRef, error) {
	out := []models.SlotRef{}
	for _, k := range r.m.sortedKeys() {
		if !r.inScope(k, scope) {
			continue
		}
		for _, s := range k.Images {
			out = append(out, models.SlotRef{KeyID: k.ID, LineCode: k.LineCode(), KeyCode: k.KeyCode(), Slot: s})
		}
	}
	return out, nil
}

func (r memSlots) Reset(_ context.Context, scope models.SlotScope, status models.Status) (int64, error) {
	var n int64
	for _, k := range r.m.keys {
		if !r.inScope(k, scope) {
			continue
		}
		if status.PreFinal() {
			n += int64(models.MaxSlotIndex + 1)
		} else {
			n += int64(len(k.Images))
		}
		k.Images = models.FreshSlots(status)
	}
	return n, nil
}

// users

type memUsers struct{ m *memCatalog }

func (r memUsers) Create(_ context.Context, u *models.User) (*models.User, error) {
	for _, x := range r.m.users {
		if x.Nickname == u.Nickname {
			return nil, fmt.Errorf("create user: %w", common.ErrorConflict)
		}
	}
	c := *u
	c.ID = r.m.nextID("user")
	r.m.users[c.ID] = &c
	out := c
	return &out, nil
}

func (r memUsers) GetByNickname(_ context.Context, nickname string) (*models.User, error) {
	for _, x := range r.m.users {
		if x.Nickname == nickname {
			c := *x
			return &c, nil
		}
	}
	return nil, notFound("user", nickname)
}

func (r memUsers) GetByID(_ context.Context, id string) (*models.User, error) {
	x, ok := r.m.users[id]
	if !ok {
		return nil, notFound("user", id)
	}
	c := *x
	return &c, nil
}

func (r memUsers) List(context.Context) ([]models.User, error) {
	out := []models.User{}
	for _, x := range r.m.users {
		c := *x
		c.PasswordHash = ""
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Nickname < out[j].Nickname })
	return out, nil
}

// --- artifact store ---

type memStore struct {
	objects map[string][]byte
	failPut error
	failDel map[string]error
	deleted []string
}

func newMemStore() *memStore {
	return &memStore{objects: map[string][]byte{}, failDel: map[string]error{}}
}

func (s *memStore) Put(_ context.Context, name string, data []byte) (artifacts.Artifact, error) {
	if s.failPut != nil {
		return artifacts.Artifact{}, s.failPut
	}
	s.objects[name] = append([]byte(nil), data...)
	return artifacts.Artifact{Handle: name, URL: "/public/" + name}, nil
}

func (s *memStore) Get(_ context.Context, handle string) ([]byte, error) {
	b, ok := s.objects[handle]
	if !ok {
		return nil, notFound("artifact", handle)
	}
	return b, nil
}

func (s *memStore) Delete(_ context.Context, handle string) error {
	if err := s.failDel[handle]; err != nil {
		return err
	}
	delete(s.objects, handle)
	s.deleted = append(s.deleted, handle)
	return nil
}

// --- recorders ---

type countingRecorder struct {
	evicted, failed int
	transitions     []string
}

func (r *countingRecorder) ArtifactEvicted() { r.evicted++ }
func (r *countingRecorder) CleanupFailed()   { r.failed++ }
func (r *countingRecorder) StatusTransition(status string) {
	r.transitions = append(r.transitions, status)
}

// --- fixtures ---

type fixture struct {
	db       *sql.DB
	mock     sqlmock.Sqlmock
	cat      *memCatalog
	store    *memStore
	recorder *countingRecorder

	retention *RetentionCoordinator
	catalog   *CatalogService
	status    *StatusService
	search    *SearchService
	images    *ImageService
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	db, mock := newSQLMockDB(t)
	f := &fixture{db: db, mock: mock, cat: newMemCatalog(), store: newMemStore(), recorder: &countingRecorder{}}
	f.retention = NewRetentionCoordinator(f.store, logging.Nop(), f.recorder)
	f.catalog = NewCatalogService(db, f.cat, f.retention, logging.Nop())
	f.status = NewStatusService(db, f.cat, f.store, f.retention, f.recorder, logging.Nop())
	rev := 0
	f.status.revision = func() string {
		rev++
		return fmt.Sprintf("r%d", rev)
	}
	f.search = NewSearchService(db, f.cat, 2, 2)
	f.images = NewImageService(db, f.cat, f.store)
	return f
}

func ptr[T any](v T) *T { return &v }

func savedSlot(idN int, handle string) models.ImageSlot {
	return models.ImageSlot{IDN: idN, Status: models.StatusSaved, PublicID: ptr(handle), URL: ptr("/public/" + handle)}
}

func pngBytes(t *testing.T, w, h int) []byte {
	t.Helper()
	img := image.NewNRGBA(image.Rect(0, 0, w, h))
	for x := 0; x < w; x++ {
		for y := 0; y < h; y++ {
			img.Set(x, y, color.NRGBA{R: uint8(x), G: uint8(y), B: 100, A: 255})
		}
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatalf("png.Encode: %v", err)
	}
	return buf.Bytes()
}
