// Package boltdb is the embedded single-file store used when no postgres
// instance is configured.
package boltdb

import (
	"time"

	bolt "github.com/boltdb/bolt"
)

var (
	refundsBucket     = []byte("extornos")
	tokensBucket      = []byte("extornos_tokens")
	emailConfigBucket = []byte("email_config")
)

// Open opens (or creates) the database file and ensures every bucket exists.
func Open(path string) (*bolt.DB, error) {
	db, err := bolt.Open(path, 0600, &bolt.Options{Timeout: 1 * time.Second})
	if err != nil {
		return nil, err
	}

	err = db.Update(func(tx *bolt.Tx) error {
		for _, name := range [][]byte{refundsBucket, tokensBucket, emailConfigBucket} {
			if _, err := tx.CreateBucketIfNotExists(name); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		db.Close()
		return nil, err
	}
	return db, nil
}
