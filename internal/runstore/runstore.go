// Package runstore はワークフローの実行結果を bbolt ファイルに保存します。
// 値は JSON で、キーは実行 ID です。
package runstore

import (
	"encoding/json"
	"time"

	bolt "go.etcd.io/bbolt"

	"github.com/YuminosukeSato/skflow/pkg/errors"
)

var runsBucket = []byte("runs")

// ErrNotFound は指定した ID の実行が存在しない場合のエラー
var ErrNotFound = errors.New("run not found")

// Store は実行結果のストア
type Store struct {
	db *bolt.DB
}

// Open は path の bbolt ファイルを開く。ファイルがなければ作成する。
func Open(path string) (*Store, error) {
	db, err := bolt.Open(path, 0o600, &bolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, errors.Wrapf(err, "open run store %s", path)
	}
	if err := db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(runsBucket)
		return err
	}); err != nil {
		_ = db.Close()
		return nil, errors.Wrap(err, "create runs bucket")
	}
	return &Store{db: db}, nil
}

// Put は v を JSON として id に保存する。既存の値は上書きされる。
func (s *Store) Put(id string, v interface{}) error {
	if id == "" {
		return errors.NewValidationError("id", "must not be empty", id)
	}
	data, err := json.Marshal(v)
	if err != nil {
		return errors.Wrapf(err, "marshal run %s", id)
	}
	return s.db.Update(func(tx *bolt.Tx) error {
		if err := tx.Bucket(runsBucket).Put([]byte(id), data); err != nil {
			return errors.Wrapf(err, "put run %s", id)
		}
		return nil
	})
}

// Get は id の値を dst にデコードする。存在しなければ ErrNotFound。
func (s *Store) Get(id string, dst interface{}) error {
	var data []byte
	if err := s.db.View(func(tx *bolt.Tx) error {
		if v := tx.Bucket(runsBucket).Get([]byte(id)); v != nil {
			data = append([]byte(nil), v...)
		}
		return nil
	}); err != nil {
		return err
	}
	if data == nil {
		return errors.Wrapf(ErrNotFound, "run %s", id)
	}
	if err := json.Unmarshal(data, dst); err != nil {
		return errors.Wrapf(err, "unmarshal run %s", id)
	}
	return nil
}

// List は保存済みの ID をキー順で返す。
// UUIDv7 の ID ならキー順は作成順と一致する。
func (s *Store) List() ([]string, error) {
	var ids []string
	err := s.db.View(func(tx *bolt.Tx) error {
		c := tx.Bucket(runsBucket).Cursor()
		for k, _ := c.First(); k != nil; k, _ = c.Next() {
			ids = append(ids, string(k))
		}
		return nil
	})
	return ids, err
}

// Delete は id の実行を削除する。存在しなくてもエラーにしない。
func (s *Store) Delete(id string) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(runsBucket).Delete([]byte(id))
	})
}

// Close はファイルを閉じる
func (s *Store) Close() error {
	if err := s.db.Close(); err != nil {
		return errors.Wrap(err, "close run store")
	}
	return nil
}
