package store

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/bykadzu/Aether-agent-os-sub005/internal/domain"
)

// FileStore wraps a MemStore and persists the durable-across-restart tables
// (cron jobs, triggers, webhooks, inbound webhooks) as newline-delimited
// JSON under dir. Other tables remain in-memory only: the spec requires
// restart survival only for those four.
type FileStore struct {
	*MemStore
	dir string
}

// NewFileStore opens or creates dir and hydrates cron jobs, triggers,
// webhooks and inbound webhooks from it.
func NewFileStore(dir string) (*FileStore, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("filestore: create dir: %w", err)
	}
	fs := &FileStore{MemStore: NewMemStore(), dir: dir}
	if err := fs.hydrate(); err != nil {
		return nil, err
	}
	return fs, nil
}

func (fs *FileStore) hydrate() error {
	if err := loadNDJSON(fs.path("cron_jobs"), func(line []byte) error {
		var j domain.CronJob
		if err := json.Unmarshal(line, &j); err != nil {
			return err
		}
		return fs.MemStore.UpsertCronJob(j)
	}); err != nil {
		return err
	}
	if err := loadNDJSON(fs.path("triggers"), func(line []byte) error {
		var t domain.EventTrigger
		if err := json.Unmarshal(line, &t); err != nil {
			return err
		}
		return fs.MemStore.UpsertTrigger(t)
	}); err != nil {
		return err
	}
	if err := loadNDJSON(fs.path("webhooks"), func(line []byte) error {
		var w domain.OutboundWebhook
		if err := json.Unmarshal(line, &w); err != nil {
			return err
		}
		return fs.MemStore.UpsertWebhook(w)
	}); err != nil {
		return err
	}
	return loadNDJSON(fs.path("inbound_webhooks"), func(line []byte) error {
		var w domain.InboundWebhook
		if err := json.Unmarshal(line, &w); err != nil {
			return err
		}
		return fs.MemStore.UpsertInboundWebhook(w)
	})
}

func (fs *FileStore) path(table string) string {
	return filepath.Join(fs.dir, table+".ndjson")
}

func loadNDJSON(path string, handle func([]byte) error) error {
	f, err := os.Open(path)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("filestore: open %s: %w", path, err)
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 1<<20)
	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		if err := handle(line); err != nil {
			// Integrity error kind: the row is skipped at init, not fatal.
			continue
		}
	}
	return scanner.Err()
}

func (fs *FileStore) rewrite(table string, rows any) error {
	tmp := fs.path(table) + ".tmp"
	f, err := os.Create(tmp)
	if err != nil {
		return fmt.Errorf("filestore: create %s: %w", tmp, err)
	}
	enc := json.NewEncoder(f)
	switch v := rows.(type) {
	case []domain.CronJob:
		for _, r := range v {
			if err := enc.Encode(r); err != nil {
				f.Close()
				return err
			}
		}
	case []domain.EventTrigger:
		for _, r := range v {
			if err := enc.Encode(r); err != nil {
				f.Close()
				return err
			}
		}
	case []domain.OutboundWebhook:
		for _, r := range v {
			if err := enc.Encode(r); err != nil {
				f.Close()
				return err
			}
		}
	case []domain.InboundWebhook:
		for _, r := range v {
			if err := enc.Encode(r); err != nil {
				f.Close()
				return err
			}
		}
	}
	if err := f.Close(); err != nil {
		return err
	}
	return os.Rename(tmp, fs.path(table))
}

func (fs *FileStore) UpsertCronJob(j domain.CronJob) error {
	if err := fs.MemStore.UpsertCronJob(j); err != nil {
		return err
	}
	rows, _ := fs.MemStore.GetAllCronJobs()
	return fs.rewrite("cron_jobs", rows)
}

func (fs *FileStore) DeleteCronJob(id string) error {
	if err := fs.MemStore.DeleteCronJob(id); err != nil {
		return err
	}
	rows, _ := fs.MemStore.GetAllCronJobs()
	return fs.rewrite("cron_jobs", rows)
}

func (fs *FileStore) UpsertTrigger(t domain.EventTrigger) error {
	if err := fs.MemStore.UpsertTrigger(t); err != nil {
		return err
	}
	rows, _ := fs.MemStore.GetAllTriggers()
	return fs.rewrite("triggers", rows)
}

func (fs *FileStore) DeleteTrigger(id string) error {
	if err := fs.MemStore.DeleteTrigger(id); err != nil {
		return err
	}
	rows, _ := fs.MemStore.GetAllTriggers()
	return fs.rewrite("triggers", rows)
}

func (fs *FileStore) UpsertWebhook(w domain.OutboundWebhook) error {
	if err := fs.MemStore.UpsertWebhook(w); err != nil {
		return err
	}
	rows, _ := fs.MemStore.GetAllWebhooks()
	return fs.rewrite("webhooks", rows)
}

func (fs *FileStore) DeleteWebhook(id string) error {
	if err := fs.MemStore.DeleteWebhook(id); err != nil {
		return err
	}
	rows, _ := fs.MemStore.GetAllWebhooks()
	return fs.rewrite("webhooks", rows)
}

func (fs *FileStore) IncrementWebhookFailure(id string) error {
	if err := fs.MemStore.IncrementWebhookFailure(id); err != nil {
		return err
	}
	rows, _ := fs.MemStore.GetAllWebhooks()
	return fs.rewrite("webhooks", rows)
}

func (fs *FileStore) UpsertInboundWebhook(w domain.InboundWebhook) error {
	if err := fs.MemStore.UpsertInboundWebhook(w); err != nil {
		return err
	}
	rows, _ := fs.MemStore.GetAllInboundWebhooks()
	return fs.rewrite("inbound_webhooks", rows)
}

func (fs *FileStore) DeleteInboundWebhook(id string) error {
	if err := fs.MemStore.DeleteInboundWebhook(id); err != nil {
		return err
	}
	rows, _ := fs.MemStore.GetAllInboundWebhooks()
	return fs.rewrite("inbound_webhooks", rows)
}

// RecomputeStaleNextRuns recomputes next-run for any durable cron job whose
// next-run fell in the past while the kernel was down, per the
// "next-run is recomputed on load if stale" persistence clause.
func (fs *FileStore) RecomputeStaleNextRuns(now time.Time, next func(expr string, after time.Time) (time.Time, error)) {
	jobs, _ := fs.MemStore.GetAllCronJobs()
	for _, j := range jobs {
		if !j.Enabled || j.NextRun.After(now) {
			continue
		}
		if nr, err := next(j.Expression, now); err == nil {
			j.NextRun = nr
			_ = fs.UpsertCronJob(j)
		}
	}
}

var _ Store = (*FileStore)(nil)
