// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package archive

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/bureau-foundation/photobackup/lib/testutil"
)

func commitPrimitives() map[string]func(string, string) (bool, error) {
	return map[string]func(string, string) (bool, error){
		"native": commitNoReplace,
		"link":   linkCommit,
	}
}

func TestCommitPublishesWhenAbsent(t *testing.T) {
	for name, commit := range commitPrimitives() {
		t.Run(name, func(t *testing.T) {
			dir := t.TempDir()
			transient := testutil.WriteFile(t, filepath.Join(dir, ".x.jpg.1.partial"), []byte("new"))
			final := filepath.Join(dir, "x.jpg")

			committed, err := commit(transient, final)
			if err != nil {
				t.Fatal(err)
			}
			if !committed {
				t.Fatal("commit reported existing target")
			}
			if string(testutil.ReadFile(t, final)) != "new" {
				t.Error("final content wrong")
			}
			if _, err := os.Stat(transient); !os.IsNotExist(err) {
				t.Errorf("transient still present after commit: %v", err)
			}
		})
	}
}

func TestCommitRefusesToReplace(t *testing.T) {
	for name, commit := range commitPrimitives() {
		t.Run(name, func(t *testing.T) {
			dir := t.TempDir()
			final := testutil.WriteFile(t, filepath.Join(dir, "x.jpg"), []byte("winner"))
			transient := testutil.WriteFile(t, filepath.Join(dir, ".x.jpg.2.partial"), []byte("loser"))

			committed, err := commit(transient, final)
			if err != nil {
				t.Fatal(err)
			}
			if committed {
				t.Fatal("commit replaced an existing object")
			}
			if string(testutil.ReadFile(t, final)) != "winner" {
				t.Error("existing object was modified")
			}
		})
	}
}
