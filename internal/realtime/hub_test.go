package realtime

import (
	"encoding/json"
	"errors"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aura-crm/backend/internal/models"
)

type fakePublisher struct {
	err       error
	published []string
}

func (f *fakePublisher) PublishRoomEvent(room, event string, _ []byte) error {
	f.published = append(f.published, room+"|"+event)
	return f.err
}

func newTestClient(hub *Hub, rooms ...string) *Client {
	return &Client{ID: uuid.New().String(), Rooms: rooms, hub: hub, send: make(chan WSMessage, 4)}
}

func TestHub_NotifyWithoutRedisDeliversLocally(t *testing.T) {
	hub := NewHub(nil, nil, nil)
	admin := newTestClient(hub, RoomAll, RoomAdmin)
	customer := newTestClient(hub, RoomAll)
	hub.Register(admin)
	hub.Register(customer)

	hub.Notify(RoomAdmin, "associations.repaired", map[string]int{"repaired": 2})

	require.Len(t, admin.send, 1)
	assert.Empty(t, customer.send)
	msg := <-admin.send
	assert.Equal(t, "associations.repaired", msg.Event)
	var data map[string]int
	require.NoError(t, json.Unmarshal(msg.Data, &data))
	assert.Equal(t, 2, data["repaired"])
}

func TestHub_NotifyWithRedisOnlyPublishes(t *testing.T) {
	pub := &fakePublisher{}
	hub := NewHub(nil, pub, nil)
	c := newTestClient(hub, RoomAll)
	hub.Register(c)

	hub.Notify(RoomAll, "campaigns.changed", nil)

	assert.Equal(t, []string{"all|campaigns.changed"}, pub.published)
	assert.Empty(t, c.send)
}

func TestHub_NotifyFallsBackWhenPublishFails(t *testing.T) {
	pub := &fakePublisher{err: errors.New("redis down")}
	hub := NewHub(nil, pub, nil)
	c := newTestClient(hub, RoomAll)
	hub.Register(c)

	hub.Notify(RoomAll, "campaigns.changed", nil)

	assert.Len(t, c.send, 1)
}

func TestHub_UnregisterDropsEmptyRooms(t *testing.T) {
	hub := NewHub(nil, nil, nil)
	c := newTestClient(hub, RoomAll, RoomAdmin)
	hub.Register(c)
	assert.Equal(t, 1, hub.ClientCount(RoomAdmin))

	hub.Unregister(c)
	assert.Zero(t, hub.ClientCount(RoomAdmin))
	assert.Zero(t, hub.ClientCount(RoomAll))
}

func TestRoomsFor(t *testing.T) {
	companyID := uuid.New()

	staff := models.Actor{Role: models.RoleManager}
	assert.Equal(t, []string{RoomAll, RoomAdmin}, RoomsFor(staff, nil))

	customer := models.Actor{Role: models.RoleCustomer}
	assert.Equal(t, []string{RoomAll, CompanyRoom(companyID)}, RoomsFor(customer, &companyID))
	assert.Equal(t, []string{RoomAll}, RoomsFor(customer, nil))
}
