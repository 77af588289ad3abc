package persistence

import (
	"TrueMarket/internal/core"
	"TrueMarket/internal/transport"
	"context"
	"database/sql"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// BlockRow represents a row in chain_blocks.
type BlockRow struct {
	ChainID   string          `json:"chain_id"`
	Height    uint64          `json:"height"`
	BlockID   string          `json:"block_id"`
	Kind      string          `json:"kind"`
	Signer    string          `json:"signer"`
	StateHash string          `json:"state_hash"`
	PrevHash  string          `json:"prev_hash"`
	Writes    int             `json:"writes"`
	Outgoing  json.RawMessage `json:"outgoing"`
	CreatedAt time.Time       `json:"created_at"`
}

// BlockRowFrom flattens a committed block. Outgoing messages are kept in
// their wire encoding.
func BlockRowFrom(b core.Block) (BlockRow, error) {
	msgs := make([]json.RawMessage, 0, len(b.Outgoing))
	for _, env := range b.Outgoing {
		data, err := transport.EncodeEnvelope(env)
		if err != nil {
			return BlockRow{}, fmt.Errorf("block %d: %w", b.Height, err)
		}
		msgs = append(msgs, data)
	}
	outgoing, err := json.Marshal(msgs)
	if err != nil {
		return BlockRow{}, fmt.Errorf("block %d outgoing: %w", b.Height, err)
	}
	return BlockRow{
		ChainID:   string(b.Chain),
		Height:    b.Height,
		BlockID:   b.ID.String(),
		Kind:      b.Kind,
		Signer:    string(b.Signer),
		StateHash: hex.EncodeToString(b.StateHash[:]),
		PrevHash:  hex.EncodeToString(b.PrevHash[:]),
		Writes:    len(b.Writes),
		Outgoing:  outgoing,
		CreatedAt: b.Timestamp,
	}, nil
}

// BlockLog writes and reads the block log using multi-row INSERT.
type BlockLog struct {
	db      *sql.DB
	dialect Dialect
}

func NewBlockLog(db *sql.DB, dialect Dialect) *BlockLog {
	return &BlockLog{db: db, dialect: dialect}
}

const blockColumns = 10

// WriteBatch inserts rows inside tx. Rewriting a height is a no-op.
func (l *BlockLog) WriteBatch(ctx context.Context, tx *sql.Tx, rows []BlockRow) error {
	if len(rows) == 0 {
		return nil
	}

	query := `INSERT INTO chain_blocks
		(chain_id, height, block_id, kind, signer, state_hash, prev_hash, writes, outgoing, created_at)
		VALUES `

	values := make([]string, 0, len(rows))
	args := make([]interface{}, 0, len(rows)*blockColumns)

	for i, r := range rows {
		base := i * blockColumns
		ph := make([]string, blockColumns)
		for j := range ph {
			ph[j] = l.dialect.Placeholder(base + j + 1)
		}
		values = append(values, "("+strings.Join(ph, ", ")+")")
		args = append(args,
			r.ChainID, int64(r.Height), r.BlockID, r.Kind, r.Signer,
			r.StateHash, r.PrevHash, r.Writes, string(r.Outgoing), r.CreatedAt.UnixMicro(),
		)
	}

	query += strings.Join(values, ", ")
	query += " ON CONFLICT (chain_id, height) DO NOTHING"

	_, err := tx.ExecContext(ctx, query, args...)
	return err
}

// Read returns up to limit blocks of chain with height greater than after.
func (l *BlockLog) Read(ctx context.Context, chain string, after uint64, limit int) ([]BlockRow, error) {
	rows, err := l.db.QueryContext(ctx, l.dialect.rebind(`
		SELECT chain_id, height, block_id, kind, signer, state_hash, prev_hash, writes, outgoing, created_at
		FROM chain_blocks WHERE chain_id = $1 AND height > $2
		ORDER BY height LIMIT $3`),
		chain, int64(after), limit,
	)
	if err != nil {
		return nil, fmt.Errorf("read blocks: %w", err)
	}
	defer rows.Close()

	var out []BlockRow
	for rows.Next() {
		var (
			r        BlockRow
			height   int64
			outgoing string
			created  int64
		)
		if err := rows.Scan(&r.ChainID, &height, &r.BlockID, &r.Kind, &r.Signer,
			&r.StateHash, &r.PrevHash, &r.Writes, &outgoing, &created); err != nil {
			return nil, fmt.Errorf("read blocks: %w", err)
		}
		r.Height = uint64(height)
		r.Outgoing = json.RawMessage(outgoing)
		r.CreatedAt = time.UnixMicro(created).UTC()
		out = append(out, r)
	}
	return out, rows.Err()
}
