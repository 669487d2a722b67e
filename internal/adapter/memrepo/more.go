package memrepo

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"imagebatch/internal/domain"
)

// ResultRepo implements domain.ResultRepository.
type ResultRepo struct{ s *Store }

func (r *ResultRepo) Record(_ context.Context, imageID, nodeID int64, in domain.ResultInput) (domain.RecordOutcome, error) {
	if in.Attempt <= 0 {
		in.Attempt = 1
	}
	if in.Status == "" {
		in.Status = domain.ResultSuccess
	}
	if !in.Status.Valid() {
		return domain.RecordOutcome{}, fmt.Errorf("status %q: %w", in.Status, domain.ErrInvalidField)
	}
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	img, ok := r.s.images[imageID]
	if !ok {
		return domain.RecordOutcome{}, domain.ErrImageNotFound
	}
	if _, ok := r.s.nodes[nodeID]; !ok {
		return domain.RecordOutcome{}, domain.ErrNodeNotFound
	}
	alreadySucceeded := false
	for _, res := range r.s.results {
		if res.ImageID != imageID {
			continue
		}
		if res.NodeID != nil && *res.NodeID == nodeID && res.Attempt == in.Attempt {
			return domain.RecordOutcome{ResultID: res.ID, Duplicate: true}, nil
		}
		if res.Status == domain.ResultSuccess {
			alreadySucceeded = true
		}
	}
	node := nodeID
	res := domain.ProcessedResult{
		ID:               r.s.next("result"),
		ImageID:          imageID,
		NodeID:           &node,
		Attempt:          in.Attempt,
		ResultFilename:   in.ResultFilename,
		StoragePath:      in.StoragePath,
		FileSize:         in.FileSize,
		Width:            in.Width,
		Height:           in.Height,
		Format:           in.Format,
		ProcessingTimeMS: in.ProcessingTimeMS,
		Status:           in.Status,
		ErrorMessage:     in.ErrorMessage,
		CreatedAt:        r.s.now(),
	}
	r.s.results = append(r.s.results, res)
	out := domain.RecordOutcome{ResultID: res.ID}
	if in.Status != domain.ResultSuccess {
		return out, nil
	}
	b := r.s.batches[img.BatchID]
	if !alreadySucceeded && b.ProcessedImages < b.TotalImages {
		b.ProcessedImages++
		out.Counted = true
	}
	if img.ProcessedAt == nil {
		now := r.s.now()
		img.ProcessedAt = &now
	}
	return out, nil
}

func (r *ResultRepo) ListRows(_ context.Context, batchID int64, successOnly bool) ([]domain.ResultRow, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var out []domain.ResultRow
	for _, id := range r.s.imageIDs(batchID) {
		img := r.s.images[id]
		for _, res := range r.s.results {
			if res.ImageID != id || (successOnly && res.Status != domain.ResultSuccess) {
				continue
			}
			out = append(out, domain.ResultRow{
				ImageID:          id,
				OriginalFilename: img.OriginalFilename,
				ResultFilename:   res.ResultFilename,
				StoragePath:      res.StoragePath,
				Status:           res.Status,
				ProcessingTimeMS: res.ProcessingTimeMS,
				NodeID:           res.NodeID,
			})
		}
	}
	return out, nil
}

func (r *ResultRepo) NodeBreakdown(_ context.Context, batchID int64) ([]domain.NodeBatchStats, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	stats := map[int64]*domain.NodeBatchStats{}
	totals := map[int64]int64{}
	timed := map[int64]int{}
	for _, res := range r.s.results {
		img, ok := r.s.images[res.ImageID]
		if !ok || img.BatchID != batchID || res.NodeID == nil {
			continue
		}
		n, ok := r.s.nodes[*res.NodeID]
		if !ok {
			continue
		}
		st, ok := stats[n.ID]
		if !ok {
			st = &domain.NodeBatchStats{NodeID: n.ID, NodeName: n.Name}
			stats[n.ID] = st
		}
		st.Results++
		if res.Status == domain.ResultSuccess {
			st.Successful++
		}
		if res.ProcessingTimeMS != nil {
			totals[n.ID] += *res.ProcessingTimeMS
			timed[n.ID]++
		}
	}
	out := make([]domain.NodeBatchStats, 0, len(stats))
	for id, st := range stats {
		if timed[id] > 0 {
			st.AvgProcessingTimeMS = float64(totals[id]) / float64(timed[id])
		}
		out = append(out, *st)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].NodeID < out[j].NodeID })
	return out, nil
}

// NodeRepo implements domain.NodeRepository.
type NodeRepo struct{ s *Store }

func (r *NodeRepo) Heartbeat(_ context.Context, hb domain.Heartbeat) (bool, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	at := hb.At
	if at.IsZero() {
		at = r.s.now()
	}
	n, ok := r.s.nodes[hb.NodeID]
	created := !ok
	if created {
		n = &domain.Node{
			ID:                hb.NodeID,
			Name:              domain.DefaultNodeName(hb.NodeID),
			IPAddress:         domain.DefaultNodeHost,
			Port:              domain.DefaultNodePort(hb.NodeID),
			MaxConcurrentJobs: domain.DefaultMaxConcurrentJobs,
			Weight:            domain.DefaultNodeWeight,
			CreatedAt:         at,
		}
		r.s.nodes[n.ID] = n
		if r.s.seq["node"] < n.ID {
			r.s.seq["node"] = n.ID
		}
	}
	n.Status = domain.NodeActive
	if n.LastHeartbeat == nil || at.After(*n.LastHeartbeat) {
		t := at
		n.LastHeartbeat = &t
	}
	if hb.IPAddress != nil {
		n.IPAddress = *hb.IPAddress
	}
	if hb.Port != nil {
		n.Port = *hb.Port
	}
	if hb.CPUCores != nil {
		n.CPUCores = hb.CPUCores
	}
	if hb.RAMGB != nil {
		n.RAMGB = hb.RAMGB
	}
	if hb.CurrentLoad != nil {
		n.CurrentLoad = *hb.CurrentLoad
	}
	n.UpdatedAt = r.s.now()
	return created, nil
}

func (r *NodeRepo) Register(_ context.Context, in domain.NewNode) (*domain.Node, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if in.MaxConcurrentJobs <= 0 {
		in.MaxConcurrentJobs = domain.DefaultMaxConcurrentJobs
	}
	if in.Weight <= 0 {
		in.Weight = domain.DefaultNodeWeight
	}
	if strings.TrimSpace(in.IPAddress) == "" {
		in.IPAddress = domain.DefaultNodeHost
	}
	id := in.ID
	if id == 0 {
		if strings.TrimSpace(in.Name) == "" {
			return nil, fmt.Errorf("node_name: %w", domain.ErrMissingField)
		}
		id = r.s.next("node")
		for r.s.nodes[id] != nil {
			id = r.s.next("node")
		}
	} else {
		if in.Name == "" {
			in.Name = domain.DefaultNodeName(id)
		}
		if in.Port == 0 {
			in.Port = domain.DefaultNodePort(id)
		}
		if r.s.seq["node"] < id {
			r.s.seq["node"] = id
		}
	}
	now := r.s.now()
	n, ok := r.s.nodes[id]
	if !ok {
		n = &domain.Node{ID: id, CreatedAt: now}
		r.s.nodes[id] = n
	}
	n.Name = in.Name
	n.IPAddress = in.IPAddress
	n.Port = in.Port
	n.Status = domain.NodeActive
	if in.CPUCores != nil {
		n.CPUCores = in.CPUCores
	}
	if in.RAMGB != nil {
		n.RAMGB = in.RAMGB
	}
	n.MaxConcurrentJobs = in.MaxConcurrentJobs
	n.Weight = in.Weight
	if n.LastHeartbeat == nil || now.After(*n.LastHeartbeat) {
		n.LastHeartbeat = &now
	}
	n.UpdatedAt = now
	out := *n
	return &out, nil
}

func (r *NodeRepo) GetByID(_ context.Context, id int64) (*domain.Node, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	n, ok := r.s.nodes[id]
	if !ok {
		return nil, domain.ErrNodeNotFound
	}
	out := *n
	return &out, nil
}

func (r *NodeRepo) List(_ context.Context) ([]domain.Node, error) {
	return r.filter(func(*domain.Node) bool { return true }), nil
}

func (r *NodeRepo) ListActive(_ context.Context, seenSince time.Time) ([]domain.Node, error) {
	return r.filter(func(n *domain.Node) bool {
		return n.Status == domain.NodeActive && n.LastHeartbeat != nil && !n.LastHeartbeat.Before(seenSince)
	}), nil
}

func (r *NodeRepo) DemoteStale(_ context.Context, before time.Time) ([]int64, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var ids []int64
	for _, n := range r.s.nodes {
		if n.Status == domain.NodeActive && (n.LastHeartbeat == nil || n.LastHeartbeat.Before(before)) {
			n.Status = domain.NodeInactive
			n.UpdatedAt = r.s.now()
			ids = append(ids, n.ID)
		}
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids, nil
}

func (r *NodeRepo) ResultCounts(_ context.Context) (map[int64][2]int, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	out := map[int64][2]int{}
	for _, res := range r.s.results {
		if res.NodeID == nil {
			continue
		}
		c := out[*res.NodeID]
		c[0]++
		if res.Status == domain.ResultFailure {
			c[1]++
		}
		out[*res.NodeID] = c
	}
	return out, nil
}

func (r *NodeRepo) filter(keep func(*domain.Node) bool) []domain.Node {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var out []domain.Node
	for _, n := range r.s.nodes {
		if keep(n) {
			out = append(out, *n)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// TransformationRepo implements domain.TransformationRepository.
type TransformationRepo struct{ s *Store }

func (r *TransformationRepo) ListActive(_ context.Context) ([]domain.Transformation, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var out []domain.Transformation
	for _, t := range r.s.transformations {
		if t.IsActive {
			out = append(out, *t)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (r *TransformationRepo) GetByID(_ context.Context, id int64) (*domain.Transformation, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	t, ok := r.s.transformations[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	out := *t
	return &out, nil
}

func (r *TransformationRepo) GetActiveByName(_ context.Context, name string) (*domain.Transformation, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	t, ok := r.s.activeByName(name)
	if !ok {
		return nil, fmt.Errorf("%q: %w", domain.NormalizeTransformationName(name), domain.ErrTransformationUnknown)
	}
	out := *t
	return &out, nil
}

func (r *TransformationRepo) Upsert(_ context.Context, t domain.Transformation) (*domain.Transformation, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if t.Version == "" {
		t.Version = "1.0"
	}
	var existing *domain.Transformation
	for _, cur := range r.s.transformations {
		if cur.Name == t.Name && cur.Version == t.Version {
			existing = cur
		} else if t.IsActive && cur.IsActive && strings.EqualFold(cur.Name, t.Name) {
			return nil, fmt.Errorf("another active %q exists: %w", t.Name, domain.ErrDuplicate)
		}
	}
	if existing == nil {
		t.ID = r.s.next("transformation")
		t.CreatedAt = r.s.now()
		r.s.transformations[t.ID] = &t
		out := t
		return &out, nil
	}
	for _, a := range r.s.attachments {
		if a.TransformationID == existing.ID {
			return nil, fmt.Errorf("%s %s: %w", t.Name, t.Version, domain.ErrTransformationInUse)
		}
	}
	existing.Description = t.Description
	existing.ParametersSchema = t.ParametersSchema
	existing.IsActive = t.IsActive
	out := *existing
	return &out, nil
}

// LogRepo implements domain.LogRepository.
type LogRepo struct{ s *Store }

func (r *LogRepo) Append(_ context.Context, e domain.LogEntry) (int64, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	l := domain.ExecutionLog{
		ID:        r.s.next("log"),
		Level:     domain.ParseLogLevel(string(e.Level)),
		Message:   e.Message,
		Timestamp: r.s.now(),
	}
	if e.NodeID != nil && r.s.nodes[*e.NodeID] != nil {
		l.NodeID = e.NodeID
	}
	if e.BatchID != nil && r.s.batches[*e.BatchID] != nil {
		l.BatchID = e.BatchID
	}
	if e.ImageID != nil && r.s.images[*e.ImageID] != nil {
		l.ImageID = e.ImageID
	}
	r.s.logs = append(r.s.logs, l)
	return l.ID, nil
}

func (r *LogRepo) ListByBatch(_ context.Context, batchID int64) ([]domain.ExecutionLog, error) {
	return r.newest(0, func(l domain.ExecutionLog) bool { return l.BatchID != nil && *l.BatchID == batchID }), nil
}

func (r *LogRepo) ListByImage(_ context.Context, imageID int64) ([]domain.ExecutionLog, error) {
	return r.newest(0, func(l domain.ExecutionLog) bool { return l.ImageID != nil && *l.ImageID == imageID }), nil
}

func (r *LogRepo) ListByNode(_ context.Context, nodeID int64, limit int) ([]domain.ExecutionLog, error) {
	if limit <= 0 {
		limit = domain.NodeLogLimit
	}
	return r.newest(limit, func(l domain.ExecutionLog) bool { return l.NodeID != nil && *l.NodeID == nodeID }), nil
}

func (r *LogRepo) ListRecent(_ context.Context, limit int) ([]domain.ExecutionLog, error) {
	if limit <= 0 {
		limit = domain.RecentLogLimit
	}
	if limit > domain.MaxRecentLogLimit {
		limit = domain.MaxRecentLogLimit
	}
	return r.newest(limit, func(domain.ExecutionLog) bool { return true }), nil
}

func (r *LogRepo) newest(limit int, keep func(domain.ExecutionLog) bool) []domain.ExecutionLog {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var out []domain.ExecutionLog
	for i := len(r.s.logs) - 1; i >= 0; i-- {
		if keep(r.s.logs[i]) {
			out = append(out, r.s.logs[i])
			if limit > 0 && len(out) == limit {
				break
			}
		}
	}
	return out
}

// UserRepo implements domain.UserRepository.
type UserRepo struct{ s *Store }

func (r *UserRepo) Create(_ context.Context, u domain.NewUser, passwordHash string) (*domain.User, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for _, cur := range r.s.users {
		if cur.Username == u.Username || cur.Email == u.Email {
			return nil, fmt.Errorf("username or email taken: %w", domain.ErrDuplicate)
		}
	}
	user := &domain.User{
		ID:           r.s.next("user"),
		Username:     u.Username,
		Email:        u.Email,
		PasswordHash: passwordHash,
		FirstName:    u.FirstName,
		LastName:     u.LastName,
		IsActive:     true,
		CreatedAt:    r.s.now(),
	}
	r.s.users[user.ID] = user
	out := *user
	return &out, nil
}

func (r *UserRepo) GetByUsername(_ context.Context, username string) (*domain.User, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for _, u := range r.s.users {
		if u.Username == username {
			out := *u
			return &out, nil
		}
	}
	return nil, domain.ErrNotFound
}

func (r *UserRepo) GetByID(_ context.Context, id int64) (*domain.User, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	u, ok := r.s.users[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	out := *u
	return &out, nil
}

func (r *UserRepo) TouchLastLogin(_ context.Context, id int64) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	u, ok := r.s.users[id]
	if !ok {
		return domain.ErrNotFound
	}
	now := r.s.now()
	u.LastLogin = &now
	return nil
}

// SetActive toggles an account; used to exercise disabled logins.
func (r *UserRepo) SetActive(id int64, active bool) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if u, ok := r.s.users[id]; ok {
		u.IsActive = active
	}
}

// SessionRepo implements domain.SessionRepository.
type SessionRepo struct{ s *Store }

func (r *SessionRepo) Create(_ context.Context, sess domain.Session) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if _, ok := r.s.sessions[sess.TokenID]; ok {
		return domain.ErrDuplicate
	}
	r.s.sessions[sess.TokenID] = &sess
	return nil
}

func (r *SessionRepo) Get(_ context.Context, tokenID string) (*domain.Session, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	sess, ok := r.s.sessions[tokenID]
	if !ok {
		return nil, domain.ErrNotFound
	}
	out := *sess
	return &out, nil
}

func (r *SessionRepo) Revoke(_ context.Context, tokenID string) (bool, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	sess, ok := r.s.sessions[tokenID]
	if !ok || sess.RevokedAt != nil {
		return false, nil
	}
	now := r.s.now()
	sess.RevokedAt = &now
	return true, nil
}

var (
	_ domain.BatchRepository          = (*BatchRepo)(nil)
	_ domain.ImageRepository          = (*ImageRepo)(nil)
	_ domain.ResultRepository         = (*ResultRepo)(nil)
	_ domain.NodeRepository           = (*NodeRepo)(nil)
	_ domain.TransformationRepository = (*TransformationRepo)(nil)
	_ domain.LogRepository            = (*LogRepo)(nil)
	_ domain.UserRepository           = (*UserRepo)(nil)
	_ domain.SessionRepository        = (*SessionRepo)(nil)
)
