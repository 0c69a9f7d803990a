package chat

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/vaultchat/vaultchat/internal/blob"
	"github.com/vaultchat/vaultchat/internal/common"
)

const (
	JobQueued    = "queued"
	JobRunning   = "running"
	JobSucceeded = "succeeded"
	JobFailed    = "failed"
)

// Job is one queued completion request processed out of band by a worker.
// ChatID may name an existing conversation to continue; when empty the
// worker starts a new one and records its id in the job on completion.
type Job struct {
	ID         string    `json:"id"`
	ChatID     string    `json:"chat_id,omitempty"`
	Prompt     string    `json:"prompt"`
	Status     string    `json:"status"`
	ResultText string    `json:"result_text,omitempty"`
	Error      string    `json:"error,omitempty"`
	Attempts   int       `json:"attempts"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`
}

// JobStore persists job state as blobs under the jobs prefix so the API
// and the worker share it without a database.
type JobStore struct {
	blobs  blob.Store
	prefix string
}

func NewJobStore(blobs blob.Store, prefix string) *JobStore {
	return &JobStore{blobs: blobs, prefix: prefix}
}

func (s *JobStore) key(id string) string {
	return s.prefix + id + ".json"
}

// Create registers a new queued job and returns it with its id assigned.
func (s *JobStore) Create(ctx context.Context, chatID, prompt string) (*Job, error) {
	id, err := common.NewULID()
	if err != nil {
		return nil, fmt.Errorf("chat: job id: %w", err)
	}
	now := time.Now().UTC()
	j := &Job{
		ID:        id,
		ChatID:    chatID,
		Prompt:    prompt,
		Status:    JobQueued,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := s.put(ctx, j); err != nil {
		return nil, err
	}
	return j, nil
}

func (s *JobStore) Get(ctx context.Context, id string) (*Job, error) {
	data, err := s.blobs.Get(ctx, s.key(id))
	if err != nil {
		return nil, err
	}
	var j Job
	if err := json.Unmarshal(data, &j); err != nil {
		return nil, fmt.Errorf("chat: decode job %s: %w", id, err)
	}
	return &j, nil
}

// Update persists the job's current state with a fresh timestamp.
func (s *JobStore) Update(ctx context.Context, j *Job) error {
	return s.put(ctx, j)
}

func (s *JobStore) put(ctx context.Context, j *Job) error {
	j.UpdatedAt = time.Now().UTC()
	data, err := json.MarshalIndent(j, "", "  ")
	if err != nil {
		return fmt.Errorf("chat: encode job %s: %w", j.ID, err)
	}
	if err := s.blobs.Put(ctx, s.key(j.ID), data, "application/json"); err != nil {
		return fmt.Errorf("chat: store job %s: %w", j.ID, err)
	}
	return nil
}
