// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package codec

import (
	"bytes"
	"encoding/json"
	"testing"
	"time"

	"github.com/bureau-foundation/photobackup/lib/digest"
)

type listing struct {
	Date      string           `json:"date"`
	Files     []string         `json:"files"`
	Algorithm digest.Algorithm `json:"algorithm"`
	Taken     time.Time        `json:"taken"`
}

func TestRoundtrip(t *testing.T) {
	original := listing{
		Date:      "2026-03-14",
		Files:     []string{"0a1b.jpg", "ffee.png"},
		Algorithm: digest.BLAKE3,
		Taken:     time.Date(2026, 3, 14, 9, 30, 0, 123456789, time.UTC),
	}
	data, err := Marshal(original)
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	var decoded listing
	if err := Unmarshal(data, &decoded); err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	if decoded.Date != original.Date || decoded.Algorithm != original.Algorithm || !decoded.Taken.Equal(original.Taken) {
		t.Errorf("roundtrip mismatch: got %+v, want %+v", decoded, original)
	}
	if len(decoded.Files) != 2 || decoded.Files[1] != "ffee.png" {
		t.Errorf("Files = %v", decoded.Files)
	}
}

func TestTextMarshalerEncodesAsString(t *testing.T) {
	data, err := Marshal(digest.SHA256)
	if err != nil {
		t.Fatal(err)
	}
	var name string
	if err := Unmarshal(data, &name); err != nil {
		t.Fatalf("decoding as string: %v", err)
	}
	if name != "sha256" {
		t.Errorf("encoded algorithm = %q, want sha256", name)
	}
}

func TestMarshalDeterministic(t *testing.T) {
	value := map[string]int{"zeta": 1, "alpha": 2, "mid": 3}
	first, err := Marshal(value)
	if err != nil {
		t.Fatal(err)
	}
	for range 10 {
		again, err := Marshal(value)
		if err != nil {
			t.Fatal(err)
		}
		if !bytes.Equal(first, again) {
			t.Fatalf("deterministic encoding violated: %x != %x", first, again)
		}
	}
}

func TestAnyDecodesToStringMaps(t *testing.T) {
	data, err := Marshal(map[string]any{"days": []any{map[string]any{"date": "2026-03-14"}}})
	if err != nil {
		t.Fatal(err)
	}
	var decoded any
	if err := Unmarshal(data, &decoded); err != nil {
		t.Fatal(err)
	}
	if _, err := json.Marshal(decoded); err != nil {
		t.Errorf("decoded value is not JSON-encodable: %v", err)
	}
}

func TestStreamRoundtrip(t *testing.T) {
	var buffer bytes.Buffer
	encoder := NewEncoder(&buffer)
	for _, date := range []string{"2026-03-14", "2026-03-15"} {
		if err := encoder.Encode(listing{Date: date}); err != nil {
			t.Fatal(err)
		}
	}
	decoder := NewDecoder(&buffer)
	for _, want := range []string{"2026-03-14", "2026-03-15"} {
		var got listing
		if err := decoder.Decode(&got); err != nil {
			t.Fatal(err)
		}
		if got.Date != want {
			t.Errorf("Date = %q, want %q", got.Date, want)
		}
	}
}
