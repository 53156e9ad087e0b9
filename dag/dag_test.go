package dag

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"dag-consensus-sim/models"
)

func hashes(nodes []*Node) []models.Hash {
	out := make([]models.Hash, len(nodes))
	for i, n := range nodes {
		out[i] = n.Tx.Hash
	}
	return out
}

func TestIngest_LinksChild(t *testing.T) {
	genesis := models.NewGenesis()
	v := New(genesis)
	a := models.NewTransaction(0, 0, 1, []models.Hash{genesis.Hash})

	attached, missing := v.Ingest(a, nil)

	require.Len(t, attached, 1)
	assert.Empty(t, missing)
	assert.Equal(t, 1, attached[0].Depth)
	assert.Equal(t, []int{attached[0].Index}, v.Root().Children)
	assert.Equal(t, []models.Hash{a.Hash}, hashes(v.Frontier()))
	assert.False(t, v.IsTip(v.Root()))
}

func TestIngest_OrphanResolvedLater(t *testing.T) {
	genesis := models.NewGenesis()
	v := New(genesis)
	a := models.NewTransaction(0, 0, 1, []models.Hash{genesis.Hash})
	b := models.NewTransaction(0, 1, 2, []models.Hash{a.Hash})
	c := models.NewTransaction(0, 2, 3, []models.Hash{b.Hash})

	attached, missing := v.Ingest(c, nil)
	assert.Empty(t, attached)
	assert.Equal(t, []models.Hash{b.Hash}, missing)

	attached, missing = v.Ingest(b, nil)
	assert.Empty(t, attached)
	assert.Equal(t, []models.Hash{a.Hash}, missing)
	assert.Len(t, v.Orphans(), 2)

	var seen []models.Hash
	attached, missing = v.Ingest(a, func(n *Node) { seen = append(seen, n.Tx.Hash) })
	assert.Empty(t, missing)
	assert.Equal(t, []models.Hash{a.Hash, b.Hash, c.Hash}, hashes(attached))
	assert.Equal(t, seen, hashes(attached))
	assert.Empty(t, v.Orphans())

	n, ok := v.Lookup(c.Hash)
	require.True(t, ok)
	assert.Equal(t, 3, n.Depth)
	assert.Equal(t, []*Node{n}, v.Deepest())
}

func TestIngest_AllParentsRequired(t *testing.T) {
	genesis := models.NewGenesis()
	v := New(genesis, WithReachability())
	a := models.NewTransaction(0, 0, 1, []models.Hash{genesis.Hash})
	b := models.NewTransaction(1, 0, 2, []models.Hash{genesis.Hash})
	c := models.NewTransaction(2, 1, 3, []models.Hash{a.Hash, b.Hash})

	v.Ingest(a, nil)
	attached, missing := v.Ingest(c, nil)
	assert.Empty(t, attached)
	assert.Equal(t, []models.Hash{b.Hash}, missing)

	attached, _ = v.Ingest(b, nil)
	require.Len(t, attached, 2)

	nc, _ := v.Lookup(c.Hash)
	na, _ := v.Lookup(a.Hash)
	nb, _ := v.Lookup(b.Hash)
	assert.True(t, v.Approves(nc, na))
	assert.True(t, v.Approves(nc, nb))
	assert.True(t, v.Approves(nc, v.Root()))
	assert.False(t, v.Approves(na, nb))
	assert.Equal(t, []*Node{nc}, v.Frontier())
}

func TestDeepest_Ties(t *testing.T) {
	genesis := models.NewGenesis()
	v := New(genesis)
	a := models.NewTransaction(0, 0, 1, []models.Hash{genesis.Hash})
	b := models.NewTransaction(1, 0, 2, []models.Hash{genesis.Hash})
	c := models.NewTransaction(1, 1, 3, []models.Hash{b.Hash})
	v.Ingest(a, nil)
	v.Ingest(b, nil)

	assert.Equal(t, []models.Hash{a.Hash, b.Hash}, hashes(v.Deepest()))

	v.Ingest(c, nil)
	assert.Equal(t, []models.Hash{c.Hash}, hashes(v.Deepest()))
	assert.Equal(t, []models.Hash{a.Hash, c.Hash}, hashes(v.Frontier()))
}
