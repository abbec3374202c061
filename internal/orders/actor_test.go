package orders

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func accessFor(status Status, buyer string, sellers ...string) Access {
	set := map[string]bool{}
	for _, s := range sellers {
		set[s] = true
	}
	return Access{Order: Order{ID: "o-1", BuyerID: buyer, Status: status}, Sellers: set}
}

func TestBuyer_Capabilities(t *testing.T) {
	b := Buyer{UserID: "u-1"}

	assert.True(t, b.CanView(accessFor(StatusPaid, "u-1")))
	assert.False(t, b.CanView(accessFor(StatusPaid, "u-2")))

	assert.True(t, b.CanRequest(accessFor(StatusPending, "u-1"), StatusCancelled))
	assert.False(t, b.CanRequest(accessFor(StatusPaid, "u-1"), StatusCancelled))
	assert.False(t, b.CanRequest(accessFor(StatusPending, "u-1"), StatusPaid))
	assert.False(t, b.CanRequest(accessFor(StatusPending, "u-2"), StatusCancelled))
}

func TestSeller_Capabilities(t *testing.T) {
	s := Seller{UserID: "s-1"}

	assert.True(t, s.CanView(accessFor(StatusPaid, "u-1", "s-1", "s-2")))
	assert.False(t, s.CanView(accessFor(StatusPaid, "u-1", "s-2")))
	assert.True(t, s.CanRequest(accessFor(StatusPaid, "u-1", "s-1"), StatusShipped))
	assert.False(t, s.CanRequest(accessFor(StatusPaid, "u-1"), StatusShipped))
}

func TestAdmin_Capabilities(t *testing.T) {
	a := Admin{UserID: "root"}
	assert.True(t, a.CanView(accessFor(StatusDone, "u-1")))
	assert.True(t, a.CanRequest(accessFor(StatusPaid, "u-1"), StatusCancelled))
}

func TestActorFor(t *testing.T) {
	a, err := ActorFor("seller", "s-1")
	require.NoError(t, err)
	assert.Equal(t, Seller{UserID: "s-1"}, a)
	assert.Equal(t, KindSeller, a.Kind())
	assert.Equal(t, "s-1", a.ID())

	_, err = ActorFor("janitor", "u-1")
	assert.ErrorIs(t, err, ErrInvalidInput)

	_, err = ActorFor("buyer", "")
	assert.ErrorIs(t, err, ErrInvalidInput)
}

func TestPage(t *testing.T) {
	assert.Equal(t, Page{Number: 1, Limit: DefaultPageLimit}, NewPage(0, 0))
	assert.Equal(t, Page{Number: 3, Limit: MaxPageLimit}, NewPage(3, 500))
	assert.Equal(t, 20, NewPage(3, 10).Offset())
}
