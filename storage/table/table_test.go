package table

import (
	"encoding/binary"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/require"

	"cyberswap/storage"
)

type record struct {
	Owner string
	ID    uint64
	Slot  string
	Rank  uint64
}

func be(v uint64) []byte {
	var buf [8]byte
	binary.BigEndian.PutUint64(buf[:], v)
	return buf[:]
}

func newTestTable() (*Table[record], *Index[record], *Index[record]) {
	slot := Unique("slot", func(r record) []byte {
		if r.Slot == "" {
			return nil
		}
		return []byte(r.Slot)
	})
	rank := Multi("rank", func(r record) []byte { return be(r.Rank) })
	codec := Codec[record]{
		Encode: func(r record) ([]byte, error) { return json.Marshal(r) },
		Decode: func(b []byte) (record, error) {
			var r record
			err := json.Unmarshal(b, &r)
			return r, err
		},
	}
	return New("t/", codec, slot, rank), slot, rank
}

func pk(owner string, id uint64) []byte { return append([]byte(owner), be(id)...) }

func TestInsertRejectsDuplicatePrimaryKey(t *testing.T) {
	tbl, _, _ := newTestTable()
	kv := storage.NewStaged(storage.NewMemDB())
	require.NoError(t, tbl.Insert(kv, pk("alice", 1), record{Owner: "alice", ID: 1}))
	require.ErrorIs(t, tbl.Insert(kv, pk("alice", 1), record{Owner: "alice", ID: 1}), ErrExists)
}

func TestUniqueIndexConflictWritesNothing(t *testing.T) {
	tbl, slot, _ := newTestTable()
	kv := storage.NewStaged(storage.NewMemDB())
	require.NoError(t, tbl.Insert(kv, pk("alice", 1), record{Owner: "alice", ID: 1, Slot: "s"}))
	err := tbl.Insert(kv, pk("bob", 2), record{Owner: "bob", ID: 2, Slot: "s"})
	require.ErrorIs(t, err, ErrIndexConflict)

	ok, err := tbl.Has(kv, pk("bob", 2))
	require.NoError(t, err)
	require.False(t, ok)

	got, found, err := slot.Lookup(kv, []byte("s"))
	require.NoError(t, err)
	require.True(t, found)
	require.Equal(t, pk("alice", 1), got)
}

func TestSaveMovesIndexEntries(t *testing.T) {
	tbl, slot, rank := newTestTable()
	kv := storage.NewStaged(storage.NewMemDB())
	key := pk("alice", 1)
	require.NoError(t, tbl.Insert(kv, key, record{Owner: "alice", ID: 1, Slot: "old", Rank: 5}))
	require.NoError(t, tbl.Save(kv, key, record{Owner: "alice", ID: 1, Slot: "new", Rank: 9}))

	_, found, err := slot.Lookup(kv, []byte("old"))
	require.NoError(t, err)
	require.False(t, found)
	_, found, err = slot.Lookup(kv, []byte("new"))
	require.NoError(t, err)
	require.True(t, found)

	var ranks [][]byte
	require.NoError(t, rank.Each(kv, nil, false, func(entry, _ []byte) (bool, error) {
		ranks = append(ranks, entry[:8])
		return true, nil
	}))
	require.Equal(t, [][]byte{be(9)}, ranks)
}

func TestMultiIndexOrderingAndRemove(t *testing.T) {
	tbl, _, rank := newTestTable()
	kv := storage.NewStaged(storage.NewMemDB())
	require.NoError(t, tbl.Insert(kv, pk("a", 1), record{Owner: "a", ID: 1, Rank: 3}))
	require.NoError(t, tbl.Insert(kv, pk("b", 2), record{Owner: "b", ID: 2, Rank: 3}))
	require.NoError(t, tbl.Insert(kv, pk("c", 3), record{Owner: "c", ID: 3, Rank: 7}))

	var desc [][]byte
	require.NoError(t, rank.Each(kv, nil, true, func(_, p []byte) (bool, error) {
		desc = append(desc, p)
		return true, nil
	}))
	require.Equal(t, [][]byte{pk("c", 3), pk("b", 2), pk("a", 1)}, desc)

	require.NoError(t, tbl.Remove(kv, pk("b", 2)))
	require.ErrorIs(t, tbl.Remove(kv, pk("b", 2)), ErrNotFound)

	var asc [][]byte
	require.NoError(t, rank.Each(kv, be(3), false, func(_, p []byte) (bool, error) {
		asc = append(asc, p)
		return true, nil
	}))
	require.Equal(t, [][]byte{pk("a", 1)}, asc)
}

func TestScanByPrimaryPrefix(t *testing.T) {
	tbl, _, _ := newTestTable()
	kv := storage.NewStaged(storage.NewMemDB())
	require.NoError(t, tbl.Insert(kv, pk("alice", 2), record{Owner: "alice", ID: 2}))
	require.NoError(t, tbl.Insert(kv, pk("alice", 1), record{Owner: "alice", ID: 1}))
	require.NoError(t, tbl.Insert(kv, pk("bob", 1), record{Owner: "bob", ID: 1}))

	var ids []uint64
	require.NoError(t, tbl.Scan(kv, []byte("alice"), func(_ []byte, r record) (bool, error) {
		ids = append(ids, r.ID)
		return true, nil
	}))
	require.Equal(t, []uint64{1, 2}, ids)
}
