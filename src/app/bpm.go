package app

import (
	"context"
	"errors"
	"fmt"

	"github.com/spf13/afero"
	"go.uber.org/zap"

	"github.com/vaultpage/vaultpage/src/bufferpool"
	"github.com/vaultpage/vaultpage/src/cfg"
	"github.com/vaultpage/vaultpage/src/pkg/common"
	"github.com/vaultpage/vaultpage/src/storage/disk"
)

// BPMEntrypoint stands up a buffer pool against a real data file and
// replays a small synthetic access trace against it, printing the
// resulting pool statistics. It is a demo/bench harness, not a
// network-facing server: nothing in src/bufferpool imports it.
type BPMEntrypoint struct {
	ConfigPath string

	cfg cfg.Config
	log *zap.SugaredLogger
	bpm *bufferpool.Manager
}

func (e *BPMEntrypoint) Init(_ context.Context) error {
	e.cfg = cfg.MustLoad(e.ConfigPath)
	e.log = newLogger(e.cfg.Environment)

	dm, err := disk.New(afero.NewOsFs(), e.cfg.DataDir+"/bpmctl.db")
	if err != nil {
		return fmt.Errorf("open data file: %w", err)
	}

	e.bpm = bufferpool.NewManager(e.cfg.PoolSize, e.cfg.LRUK, dm, e.log)

	return nil
}

// Run replays a fixed access trace: allocate PoolSize+1 pages, write a
// label into each and unpin it dirty (so at least one eviction happens),
// then fetch every page back in allocation order.
func (e *BPMEntrypoint) Run(_ context.Context) error {
	var ids []common.PageID

	for i := 0; i < e.cfg.PoolSize+1; i++ {
		id, pg, err := e.bpm.NewPage()
		if err != nil {
			if errors.Is(err, bufferpool.ErrPoolExhausted) {
				e.log.Warnw("pool exhausted during trace", "step", i)
				break
			}

			return fmt.Errorf("new page at step %d: %w", i, err)
		}

		copy(pg.GetData(), []byte(fmt.Sprintf("page-%d", id)))
		e.bpm.UnpinPage(id, true, common.AccessScan)
		ids = append(ids, id)
	}

	for _, id := range ids {
		pg, err := e.bpm.FetchPage(id, common.AccessLookup)
		if err != nil {
			return fmt.Errorf("fetch page %d: %w", id, err)
		}

		e.log.Infow("fetched page", "page_id", id, "prefix", string(pg.GetData()[:16]))
		e.bpm.UnpinPage(id, false, common.AccessLookup)
	}

	if err := e.bpm.FlushAllPages(); err != nil {
		return fmt.Errorf("flush all pages: %w", err)
	}

	if last := e.bpm.LastEvictedPage(); last.IsSome() {
		e.log.Infow("trace complete", "pages_touched", len(ids), "last_evicted", last.Unwrap())
	} else {
		e.log.Infow("trace complete", "pages_touched", len(ids), "evictions", 0)
	}

	return nil
}

func (e *BPMEntrypoint) Close() error {
	var flushErr error

	if e.bpm != nil {
		flushErr = e.bpm.FlushAllPages()
		if flushErr != nil && e.log != nil {
			e.log.Errorw("flush all pages on close", "error", flushErr)
		}
	}

	if e.log != nil {
		if err := e.log.Sync(); err != nil {
			return err
		}
	}

	return flushErr
}
