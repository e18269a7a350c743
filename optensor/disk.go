package optensor

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/pkg/errors"
)

const (
	tableBlock  = "blk"
	tableFactor = "op"
)

// Archive stores block-sparse operator matrices in a sqlite database so
// that renormalized operators can be dropped from memory between sweep
// steps and rebuilt on demand.
type Archive struct {
	Path string

	db *sql.DB
}

// OpenArchive creates an empty archive at dbPath, replacing any previous
// content.
func OpenArchive(dbPath string) (*Archive, error) {
	db, err := sql.Open("sqlite3", fmt.Sprintf("file:%s", dbPath))
	if err != nil {
		return nil, errors.Wrap(err, "")
	}
	if err := prepareArchive(db); err != nil {
		db.Close()
		return nil, errors.Wrap(err, "")
	}
	return &Archive{Path: dbPath, db: db}, nil
}

func prepareArchive(db *sql.DB) error {
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	for _, sqlStr := range []string{
		fmt.Sprintf(`DROP TABLE IF EXISTS %s`, tableBlock),
		fmt.Sprintf(`DROP TABLE IF EXISTS %s`, tableFactor),
		fmt.Sprintf(`CREATE TABLE %s (k TEXT, s INTEGER, i INTEGER, j INTEGER, re REAL, im REAL, PRIMARY KEY (k, s, i, j)) STRICT`, tableBlock),
		fmt.Sprintf(`CREATE TABLE %s (k TEXT PRIMARY KEY, re REAL, im REAL) STRICT`, tableFactor),
	} {
		if _, err := db.ExecContext(ctx, sqlStr); err != nil {
			return errors.Wrap(err, "")
		}
	}
	return nil
}

// Close closes the database and removes the file.
func (ar *Archive) Close() error {
	var err error
	if err1 := ar.db.Close(); err1 != nil && err == nil {
		err = err1
	}
	if err1 := os.Remove(ar.Path); err1 != nil && err == nil {
		err = err1
	}
	return err
}

// Put stores the matrix under key, replacing any previous entry. Zero
// elements are not stored.
func (ar *Archive) Put(key string, m *Matrix) error {
	ctx, cancel := context.WithTimeout(context.Background(), 48*time.Hour)
	defer cancel()

	sqlStr := fmt.Sprintf(`DELETE FROM %s WHERE k=?`, tableBlock)
	if _, err := ar.db.ExecContext(ctx, sqlStr, key); err != nil {
		return errors.Wrap(err, "")
	}
	sqlStr = fmt.Sprintf(`INSERT OR REPLACE INTO %s (k, re, im) VALUES (?, ?, ?)`, tableFactor)
	if _, err := ar.db.ExecContext(ctx, sqlStr, key, real(m.Factor), imag(m.Factor)); err != nil {
		return errors.Wrap(err, "")
	}

	sqlStr = fmt.Sprintf(`INSERT INTO %s (k, s, i, j, re, im) VALUES (?, ?, ?, ?, ?, ?)`, tableBlock)
	for s, blk := range m.Blocks {
		for ij, v := range blk.All() {
			if v == 0 {
				continue
			}
			if _, err := ar.db.ExecContext(ctx, sqlStr, key, s, ij[0], ij[1], real(v), imag(v)); err != nil {
				return errors.Wrap(err, fmt.Sprintf("%s %d %v", key, s, ij))
			}
		}
	}
	return nil
}

// Load reads the matrix stored under key into a fresh allocation over
// info.
func (ar *Archive) Load(key string, info *Info) (*Matrix, error) {
	m := NewMatrix(info)

	ctx, cancel := context.WithTimeout(context.Background(), 48*time.Hour)
	defer cancel()
	sqlStr := fmt.Sprintf(`SELECT re, im FROM %s WHERE k=?`, tableFactor)
	var fre, fim float64
	err := ar.db.QueryRowContext(ctx, sqlStr, key).Scan(&fre, &fim)
	switch {
	case err == sql.ErrNoRows:
		return nil, errors.Errorf("no operator %q in archive %s", key, ar.Path)
	case err != nil:
		return nil, errors.Wrap(err, "")
	}
	m.Factor = complex(float32(fre), float32(fim))

	sqlStr = fmt.Sprintf(`SELECT s, i, j, re, im FROM %s WHERE k=? ORDER BY s, i, j`, tableBlock)
	rows, err := ar.db.QueryContext(ctx, sqlStr, key)
	if err != nil {
		return nil, errors.Wrap(err, "")
	}
	defer rows.Close()

	for rows.Next() {
		var s, i, j int
		var re, im float64
		if err := rows.Scan(&s, &i, &j, &re, &im); err != nil {
			return nil, errors.Wrap(err, "")
		}
		if s < 0 || s >= len(m.Blocks) {
			return nil, errors.Errorf("operator %q sector %d out of %d", key, s, len(m.Blocks))
		}
		m.Blocks[s].SetAt([]int{i, j}, complex(float32(re), float32(im)))
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(err, "")
	}
	return m, nil
}

// Delayed returns an operand rebuilt from the archive on every use.
func (ar *Archive) Delayed(key string, info *Info) *Delayed {
	return NewDelayed(info, func() *Matrix {
		m, err := ar.Load(key, info)
		if err != nil {
			panic(fmt.Sprintf("%+v", err))
		}
		return m
	})
}
