package entity

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/fxamacker/cbor/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPartialEntityUnmarshalJSON_AbsentVersusNull(t *testing.T) {
	data := []byte(`{"id":"T1","workspace_id":"W","body":null}`)

	var p PartialEntity
	require.NoError(t, json.Unmarshal(data, &p))

	require.NotNil(t, p.ID)
	assert.Equal(t, "T1", *p.ID)
	require.NotNil(t, p.WorkspaceID)
	assert.Equal(t, "W", *p.WorkspaceID)

	// body was present with a null value: pointer to the zero value.
	require.NotNil(t, p.Body)
	assert.Equal(t, "", *p.Body)

	// parent_id was absent entirely: nil pointer.
	assert.Nil(t, p.ParentID)
	assert.Nil(t, p.AssigneeID)
	assert.Nil(t, p.CreatedAt)
}

func TestPartialEntityUnmarshalJSON_FullPayload(t *testing.T) {
	data := []byte(`{
		"id": "T1",
		"kind": "task",
		"parent_id": "P1",
		"workspace_id": "W",
		"assignee_id": "u1",
		"assignee_type": "client",
		"body": "hello",
		"created_at": "2024-01-02T03:04:05Z"
	}`)

	var p PartialEntity
	require.NoError(t, json.Unmarshal(data, &p))

	require.NotNil(t, p.Kind)
	assert.Equal(t, KindTask, *p.Kind)
	require.NotNil(t, p.ParentID)
	assert.Equal(t, "P1", *p.ParentID)
	require.NotNil(t, p.AssigneeType)
	assert.Equal(t, AssigneeClient, *p.AssigneeType)
	require.NotNil(t, p.CreatedAt)
	assert.True(t, p.CreatedAt.Equal(time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC)))
}

func TestPartialEntityUnmarshalJSON_NullDeletedAtIsAbsent(t *testing.T) {
	var p PartialEntity
	require.NoError(t, json.Unmarshal([]byte(`{"id":"T1","deleted_at":null}`), &p))
	assert.Nil(t, p.DeletedAt)
}

func TestPartialEntityUnmarshalCBOR_AbsentVersusNull(t *testing.T) {
	data, err := cbor.Marshal(map[string]any{
		"id":           "T1",
		"workspace_id": "W",
		"body":         nil,
	})
	require.NoError(t, err)

	var p PartialEntity
	require.NoError(t, cbor.Unmarshal(data, &p))

	require.NotNil(t, p.ID)
	assert.Equal(t, "T1", *p.ID)
	require.NotNil(t, p.Body)
	assert.Equal(t, "", *p.Body)
	assert.Nil(t, p.ParentID)
}

func TestPartialEntityCBORRoundTrip(t *testing.T) {
	created := time.Date(2024, 5, 6, 7, 8, 9, 0, time.UTC)
	e := Entity{
		ID:          "T1",
		Kind:        KindTemplate,
		WorkspaceID: "W",
		AssigneeID:  "u1",
		Body:        "hello",
		CreatedAt:   created,
	}

	data, err := cbor.Marshal(Partial(e))
	require.NoError(t, err)

	var p PartialEntity
	require.NoError(t, cbor.Unmarshal(data, &p))

	require.NotNil(t, p.ID)
	assert.Equal(t, "T1", *p.ID)
	require.NotNil(t, p.Body)
	assert.Equal(t, "hello", *p.Body)
	require.NotNil(t, p.CreatedAt)
	assert.True(t, p.CreatedAt.Equal(created))

	// Partial projects every key, including empty ones.
	require.NotNil(t, p.ParentID)
	assert.Equal(t, "", *p.ParentID)
}

func TestChangeNotificationEntityID(t *testing.T) {
	id := "T1"
	n := ChangeNotification{EventType: EventUpdate, Next: PartialEntity{ID: &id}}
	assert.Equal(t, "T1", n.EntityID())

	assert.Equal(t, "", ChangeNotification{}.EntityID())
}

func TestTempIDs(t *testing.T) {
	id := NewTempID()
	assert.True(t, IsTempID(id))
	assert.False(t, IsTempID("b2a9f1c4-0000-0000-0000-000000000000"))
	assert.NotEqual(t, id, NewTempID())
}

func TestEntityDeleted(t *testing.T) {
	assert.False(t, Entity{}.Deleted())

	now := time.Now()
	assert.True(t, Entity{DeletedAt: &now}.Deleted())
}
