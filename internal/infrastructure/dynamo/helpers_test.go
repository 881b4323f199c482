package dynamo

import (
	"strings"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/go-notify-nosql/internal/domain"
)

func TestBuildUpdateExpr_SingleField(t *testing.T) {
	ue, err := buildUpdateExpr(map[string]interface{}{"read_status": "READ"})
	require.NoError(t, err)
	assert.Equal(t, "SET #f0 = :v0", ue.Expr)
	assert.Equal(t, map[string]string{"#f0": "read_status"}, ue.Names)
	_, ok := ue.Values[":v0"]
	assert.True(t, ok)
}

func TestBuildUpdateExpr_MultipleFields_Deterministic(t *testing.T) {
	updates := map[string]interface{}{
		"read_status":     "READ",
		"read_by_user_id": "u1",
		"read_at":         time.Unix(0, 0).UTC(),
	}
	ue1, err := buildUpdateExpr(updates)
	require.NoError(t, err)
	ue2, err := buildUpdateExpr(updates)
	require.NoError(t, err)

	assert.Equal(t, ue1.Expr, ue2.Expr)
	assert.Equal(t, "read_at", ue1.Names["#f0"])
	assert.Equal(t, "read_by_user_id", ue1.Names["#f1"])
	assert.Equal(t, "read_status", ue1.Names["#f2"])
	assert.Equal(t, "SET #f0 = :v0, #f1 = :v1, #f2 = :v2", ue1.Expr)
}

func TestBuildUpdateExpr_ValuesMarshalledCorrectly(t *testing.T) {
	ue, err := buildUpdateExpr(map[string]interface{}{"enable": true})
	require.NoError(t, err)
	av, ok := ue.Values[":v0"]
	require.True(t, ok)
	boolVal, isBool := av.(*types.AttributeValueMemberBOOL)
	require.True(t, isBool)
	assert.True(t, boolVal.Value)
}

func TestBuildUpdateExpr_EmptyMap_ReturnsError(t *testing.T) {
	_, err := buildUpdateExpr(map[string]interface{}{})
	assert.ErrorContains(t, err, "no fields to update")
}

func TestUpdateExpr_RemoveAndWhere(t *testing.T) {
	ue, err := buildUpdateExpr(map[string]interface{}{"delivery_status": "DELIVERED"})
	require.NoError(t, err)
	ue.remove("pending_key", "pending_sort")
	cond := ue.where(map[string]types.AttributeValue{
		"recipient_id":    str("u1"),
		"delivery_status": str("PENDING"),
	})

	assert.Equal(t, "SET #f0 = :v0 REMOVE #r0, #r1", ue.Expr)
	assert.Equal(t, "#c0 = :c0 AND #c1 = :c1", cond)
	assert.Equal(t, "delivery_status", ue.Names["#c0"])
	assert.Equal(t, "recipient_id", ue.Names["#c1"])
	assert.Equal(t, "pending_sort", ue.Names["#r1"])
}

func TestPendingSort_OrdersByPriorityThenAge(t *testing.T) {
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	urgentLate := &domain.Notification{NotificationID: "a", Priority: domain.PriorityUrgent, CreatedAt: base.Add(time.Hour)}
	normalEarly := &domain.Notification{NotificationID: "b", Priority: domain.PriorityNormal, CreatedAt: base}
	normalLate := &domain.Notification{NotificationID: "c", Priority: domain.PriorityNormal, CreatedAt: base.Add(time.Minute)}

	assert.True(t, strings.Compare(pendingSort(urgentLate), pendingSort(normalEarly)) < 0)
	assert.True(t, strings.Compare(pendingSort(normalEarly), pendingSort(normalLate)) < 0)
}

func TestToItem_OnlyPendingPolledRowsAreIndexed(t *testing.T) {
	pending := &domain.Notification{NotificationID: "a", Channel: domain.ChannelPush, DeliveryStatus: domain.DeliveryPending}
	realtime := &domain.Notification{NotificationID: "b", Channel: domain.ChannelRealtime}
	delivered := &domain.Notification{NotificationID: "c", Channel: domain.ChannelSMS, DeliveryStatus: domain.DeliveryDelivered}

	assert.Equal(t, "PUSH", toItem(pending).PendingKey)
	assert.Empty(t, toItem(realtime).PendingKey)
	assert.Empty(t, toItem(delivered).PendingKey)
}

func TestScopeQuery(t *testing.T) {
	cases := []struct {
		name     string
		sel      domain.ReadSelector
		index    string
		keyCond  string
		filter   string
		keyField string
		keyValue string
	}{
		{
			name:     "group",
			sel:      domain.ReadSelector{Scope: domain.ScopeGroup, EventPrefix: "evt1#", GroupID: "G1"},
			index:    indexGroup,
			keyCond:  "#k = :k AND begins_with(#ev, :prefix)",
			filter:   "#sr = :true AND #rs = :unread",
			keyField: fieldGroupID,
			keyValue: "G1",
		},
		{
			name:     "hub",
			sel:      domain.ReadSelector{Scope: domain.ScopeHub, EventPrefix: "evt1#", HubID: "H1"},
			index:    indexHub,
			keyCond:  "#k = :k AND begins_with(#ev, :prefix)",
			filter:   "#sr = :true AND #rs = :unread",
			keyField: fieldHubID,
			keyValue: "H1",
		},
		{
			name:     "hub broadcast reaches read rows too",
			sel:      domain.ReadSelector{Scope: domain.ScopeHubBroadcast, HubID: "H1"},
			index:    indexHub,
			keyCond:  "#k = :k",
			keyField: fieldHubID,
			keyValue: "H1",
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			in, err := scopeQuery("tbl", tc.sel)
			require.NoError(t, err)
			assert.Equal(t, "tbl", *in.TableName)
			assert.Equal(t, tc.index, *in.IndexName)
			assert.Equal(t, tc.keyCond, *in.KeyConditionExpression)
			assert.Equal(t, tc.keyField, in.ExpressionAttributeNames["#k"])
			assert.Equal(t, str(tc.keyValue), in.ExpressionAttributeValues[":k"])
			if tc.filter == "" {
				assert.Nil(t, in.FilterExpression)
				assert.NotContains(t, in.ExpressionAttributeNames, "#rs")
				assert.NotContains(t, in.ExpressionAttributeValues, ":unread")
				return
			}
			require.NotNil(t, in.FilterExpression)
			assert.Equal(t, tc.filter, *in.FilterExpression)
			assert.Equal(t, str(tc.sel.EventPrefix), in.ExpressionAttributeValues[":prefix"])
		})
	}
}

func TestScopeQuery_RejectsIncompleteSelector(t *testing.T) {
	for _, sel := range []domain.ReadSelector{
		{Scope: domain.ScopeGroup, GroupID: "G1"},
		{Scope: domain.ScopeHub, EventPrefix: "evt1#"},
		{Scope: domain.ScopeHubBroadcast},
		{Scope: domain.ScopeNone},
	} {
		_, err := scopeQuery("tbl", sel)
		assert.ErrorIs(t, err, domain.ErrValidation, sel.Scope)
	}
}

func TestReadConds(t *testing.T) {
	owned := readConds(true, map[string]types.AttributeValue{fieldRecipientID: str("u1")})
	assert.Equal(t, map[string]types.AttributeValue{
		fieldReadStatus:  str("UNREAD"),
		fieldRecipientID: str("u1"),
	}, owned)

	broadcast := readConds(false, map[string]types.AttributeValue{fieldHubID: str("H1")})
	assert.Equal(t, map[string]types.AttributeValue{fieldHubID: str("H1")}, broadcast)
}
