package s3blob

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/dehublabs/predictiond/internal/domain"
)

// watermarkPath stores the highest epoch already archived, so repeated runs
// never re-upload the same rounds. Archived rows are NOT deleted from the
// primary store; pruning is a separate, explicit step taken after an archive
// has been verified.
const watermarkPath = "archive/rounds/.watermark"

// roundRecord is one archived line: a settled round together with every bet
// placed on it.
type roundRecord struct {
	Round domain.Round `json:"round"`
	Bets  []domain.Bet `json:"bets,omitempty"`
}

// Archiver uploads settled rounds and their bets to the object store as
// newline-delimited JSON, one object per batch.
type Archiver struct {
	writer *Writer
	reader *Reader
	rounds domain.RoundStore
	bets   domain.BetStore
}

// NewArchiver creates an Archiver over the given client and stores.
func NewArchiver(c *Client, rounds domain.RoundStore, bets domain.BetStore) *Archiver {
	return &Archiver{
		writer: NewWriter(c),
		reader: NewReader(c),
		rounds: rounds,
		bets:   bets,
	}
}

// ArchiveSettled uploads executed rounds with epoch below the cutoff that
// have not been archived yet. The object key carries the epoch range:
//
//	archive/rounds/00000001-00000100.jsonl
//
// It returns the number of rounds archived; zero with a nil error means
// nothing new was eligible.
func (a *Archiver) ArchiveSettled(ctx context.Context, before uint64, limit int) (int64, error) {
	from, err := a.loadWatermark(ctx)
	if err != nil {
		return 0, err
	}

	settled, err := a.rounds.ListSettledBefore(ctx, before, limit)
	if err != nil {
		return 0, fmt.Errorf("s3blob: archive query: %w", err)
	}

	var batch []domain.Round
	for _, r := range settled {
		if r.Epoch > from {
			batch = append(batch, r)
		}
	}
	if len(batch) == 0 {
		return 0, nil
	}

	records := make([]roundRecord, 0, len(batch))
	for _, r := range batch {
		bets, err := a.bets.ListByEpoch(ctx, r.Epoch)
		if err != nil {
			return 0, fmt.Errorf("s3blob: archive bets for epoch %d: %w", r.Epoch, err)
		}
		records = append(records, roundRecord{Round: r, Bets: bets})
	}

	buf, err := marshalJSONL(records)
	if err != nil {
		return 0, fmt.Errorf("s3blob: archive marshal: %w", err)
	}

	first := batch[0].Epoch
	last := batch[len(batch)-1].Epoch
	path := fmt.Sprintf("archive/rounds/%08d-%08d.jsonl", first, last)

	if len(buf) > int(minPartSize) {
		err = a.writer.PutMultipart(ctx, path, bytes.NewReader(buf), minPartSize)
	} else {
		err = a.writer.Put(ctx, path, bytes.NewReader(buf), "application/x-ndjson")
	}
	if err != nil {
		return 0, fmt.Errorf("s3blob: archive upload: %w", err)
	}

	if err := a.saveWatermark(ctx, last); err != nil {
		return int64(len(batch)), err
	}
	return int64(len(batch)), nil
}

// ListArchives returns metadata for every uploaded archive object, excluding
// the watermark marker.
func (a *Archiver) ListArchives(ctx context.Context) ([]ObjectInfo, error) {
	infos, err := a.reader.List(ctx, "archive/rounds/")
	if err != nil {
		return nil, err
	}
	out := infos[:0]
	for _, info := range infos {
		if info.Path != watermarkPath {
			out = append(out, info)
		}
	}
	return out, nil
}

func (a *Archiver) loadWatermark(ctx context.Context) (uint64, error) {
	body, err := a.reader.Get(ctx, watermarkPath)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return 0, nil
		}
		return 0, fmt.Errorf("s3blob: load watermark: %w", err)
	}
	defer body.Close()

	raw, err := io.ReadAll(body)
	if err != nil {
		return 0, fmt.Errorf("s3blob: read watermark: %w", err)
	}
	epoch, err := strconv.ParseUint(strings.TrimSpace(string(raw)), 10, 64)
	if err != nil {
		return 0, fmt.Errorf("s3blob: parse watermark %q: %w", raw, err)
	}
	return epoch, nil
}

func (a *Archiver) saveWatermark(ctx context.Context, epoch uint64) error {
	content := strconv.FormatUint(epoch, 10)
	if err := a.writer.Put(ctx, watermarkPath, strings.NewReader(content), "text/plain"); err != nil {
		return fmt.Errorf("s3blob: save watermark: %w", err)
	}
	return nil
}

// marshalJSONL serializes records as newline-delimited JSON, one compact
// object per line.
func marshalJSONL[T any](records []T) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)

	for i, rec := range records {
		if err := enc.Encode(rec); err != nil {
			return nil, fmt.Errorf("jsonl encode record %d: %w", i, err)
		}
	}
	return buf.Bytes(), nil
}
