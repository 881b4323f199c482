package dynamo

import (
	"context"
	"sort"
	"strings"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/go-notify-nosql/internal/domain"
)

type mockDynamo struct {
	mock.Mock
}

func (m *mockDynamo) Query(ctx context.Context, in *dynamodb.QueryInput, _ ...func(*dynamodb.Options)) (*dynamodb.QueryOutput, error) {
	args := m.Called(ctx, in)
	out, _ := args.Get(0).(*dynamodb.QueryOutput)
	return out, args.Error(1)
}

func (m *mockDynamo) GetItem(ctx context.Context, in *dynamodb.GetItemInput, _ ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error) {
	args := m.Called(ctx, in)
	out, _ := args.Get(0).(*dynamodb.GetItemOutput)
	return out, args.Error(1)
}

func (m *mockDynamo) UpdateItem(ctx context.Context, in *dynamodb.UpdateItemInput, _ ...func(*dynamodb.Options)) (*dynamodb.UpdateItemOutput, error) {
	args := m.Called(ctx, in)
	out, _ := args.Get(0).(*dynamodb.UpdateItemOutput)
	return out, args.Error(1)
}

func (m *mockDynamo) TransactWriteItems(ctx context.Context, in *dynamodb.TransactWriteItemsInput, _ ...func(*dynamodb.Options)) (*dynamodb.TransactWriteItemsOutput, error) {
	args := m.Called(ctx, in)
	out, _ := args.Get(0).(*dynamodb.TransactWriteItemsOutput)
	return out, args.Error(1)
}

var readMark = domain.ReadMark{ByUserID: "admin-1", At: time.Date(2026, 4, 2, 9, 30, 0, 0, time.UTC)}

func newRepo(client *mockDynamo) *NotificationRepo {
	return NewNotificationRepo(client, map[domain.Category]string{domain.CategoryRestaurant: "restaurant_notifications"})
}

func idPage(ids ...string) *dynamodb.QueryOutput {
	out := &dynamodb.QueryOutput{}
	for _, id := range ids {
		out.Items = append(out.Items, map[string]types.AttributeValue{fieldNotificationID: str(id)})
	}
	return out
}

// condFields lists the attribute names a conditional update checks.
func condFields(in *dynamodb.UpdateItemInput) []string {
	var fields []string
	for k, v := range in.ExpressionAttributeNames {
		if strings.HasPrefix(k, "#c") {
			fields = append(fields, v)
		}
	}
	sort.Strings(fields)
	return fields
}

func keyOf(in *dynamodb.UpdateItemInput) string {
	s, _ := in.Key[fieldNotificationID].(*types.AttributeValueMemberS)
	if s == nil {
		return ""
	}
	return s.Value
}

func TestMarkReadByScope_HubBroadcastUpdatesEveryRowInHub(t *testing.T) {
	client := new(mockDynamo)
	client.On("Query", mock.Anything, mock.MatchedBy(func(in *dynamodb.QueryInput) bool {
		return *in.IndexName == indexHub && in.FilterExpression == nil
	})).Return(idPage("n1", "n2"), nil).Once()

	var updated []*dynamodb.UpdateItemInput
	client.On("UpdateItem", mock.Anything, mock.Anything).
		Run(func(args mock.Arguments) { updated = append(updated, args.Get(1).(*dynamodb.UpdateItemInput)) }).
		Return(&dynamodb.UpdateItemOutput{}, nil)

	n, err := newRepo(client).MarkReadByScope(context.Background(), domain.CategoryRestaurant,
		domain.ReadSelector{Scope: domain.ScopeHubBroadcast, HubID: "H1"}, readMark)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	require.Len(t, updated, 2)
	for _, in := range updated {
		assert.Equal(t, []string{fieldHubID}, condFields(in), keyOf(in))
		assert.Equal(t, "#c0 = :c0", *in.ConditionExpression)
		assert.Equal(t, str("H1"), in.ExpressionAttributeValues[":c0"])
	}
	client.AssertExpectations(t)
}

func TestMarkReadByScope_GroupCountsOnlyRowsThatFlipped(t *testing.T) {
	client := new(mockDynamo)
	client.On("Query", mock.Anything, mock.MatchedBy(func(in *dynamodb.QueryInput) bool {
		return *in.IndexName == indexGroup
	})).Return(idPage("n1", "n2", "n3"), nil).Once()

	client.On("UpdateItem", mock.Anything, mock.MatchedBy(func(in *dynamodb.UpdateItemInput) bool {
		return keyOf(in) == "n2"
	})).Return(nil, &types.ConditionalCheckFailedException{}).Once()
	client.On("UpdateItem", mock.Anything, mock.MatchedBy(func(in *dynamodb.UpdateItemInput) bool {
		return keyOf(in) != "n2" && assert.ObjectsAreEqual([]string{fieldReadStatus}, condFields(in))
	})).Return(&dynamodb.UpdateItemOutput{}, nil).Twice()

	n, err := newRepo(client).MarkReadByScope(context.Background(), domain.CategoryRestaurant,
		domain.ReadSelector{Scope: domain.ScopeGroup, EventPrefix: "evt1#", GroupID: "G1"}, readMark)
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	client.AssertExpectations(t)
}

func TestMarkRead_GuardsOwnerAndUnread(t *testing.T) {
	client := new(mockDynamo)
	client.On("UpdateItem", mock.Anything, mock.MatchedBy(func(in *dynamodb.UpdateItemInput) bool {
		return keyOf(in) == "n1" &&
			assert.ObjectsAreEqual([]string{fieldReadStatus, fieldRecipientID}, condFields(in))
	})).Return(nil, &types.ConditionalCheckFailedException{}).Once()

	n, err := newRepo(client).MarkRead(context.Background(), domain.CategoryRestaurant, "n1", "u1", readMark)
	require.NoError(t, err)
	assert.Equal(t, 0, n)
	client.AssertExpectations(t)
}

func TestRecordFailure_BelowCeilingStaysPending(t *testing.T) {
	client := new(mockDynamo)
	client.On("UpdateItem", mock.Anything, mock.MatchedBy(func(in *dynamodb.UpdateItemInput) bool {
		return *in.UpdateExpression == "ADD #rc :one"
	})).Return(&dynamodb.UpdateItemOutput{Attributes: map[string]types.AttributeValue{
		fieldRetryCount: &types.AttributeValueMemberN{Value: "1"},
	}}, nil).Once()

	status, err := newRepo(client).RecordFailure(context.Background(), domain.CategoryRestaurant, "n1", 3)
	require.NoError(t, err)
	assert.Equal(t, domain.DeliveryPending, status)
	client.AssertExpectations(t)
}

func TestRecordFailure_AtCeilingFailsAndLeavesPendingIndex(t *testing.T) {
	client := new(mockDynamo)
	client.On("UpdateItem", mock.Anything, mock.MatchedBy(func(in *dynamodb.UpdateItemInput) bool {
		return *in.UpdateExpression == "ADD #rc :one"
	})).Return(&dynamodb.UpdateItemOutput{Attributes: map[string]types.AttributeValue{
		fieldRetryCount: &types.AttributeValueMemberN{Value: "3"},
	}}, nil).Once()
	client.On("UpdateItem", mock.Anything, mock.MatchedBy(func(in *dynamodb.UpdateItemInput) bool {
		return strings.Contains(*in.UpdateExpression, "REMOVE") &&
			assert.ObjectsAreEqual(str(string(domain.DeliveryFailed)), in.ExpressionAttributeValues[":v0"])
	})).Return(&dynamodb.UpdateItemOutput{}, nil).Once()

	status, err := newRepo(client).RecordFailure(context.Background(), domain.CategoryRestaurant, "n1", 3)
	require.NoError(t, err)
	assert.Equal(t, domain.DeliveryFailed, status)
	client.AssertExpectations(t)
}

func TestRecordFailure_NotPendingIsNotFound(t *testing.T) {
	client := new(mockDynamo)
	client.On("UpdateItem", mock.Anything, mock.Anything).
		Return(nil, &types.ConditionalCheckFailedException{}).Once()

	_, err := newRepo(client).RecordFailure(context.Background(), domain.CategoryRestaurant, "n1", 3)
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestListPending_QueriesSparseIndexAndHonoursLimit(t *testing.T) {
	var items []map[string]types.AttributeValue
	for _, id := range []string{"n1", "n2", "n3"} {
		item, err := attributevalue.MarshalMap(toItem(&domain.Notification{
			NotificationID: id,
			EventID:        domain.RecipientEventID("evt-"+id, "u1", domain.ChannelPush),
			RecipientID:    "u1",
			Category:       domain.CategoryRestaurant,
			Channel:        domain.ChannelPush,
			DeliveryStatus: domain.DeliveryPending,
			ReadStatus:     domain.ReadUnread,
		}))
		require.NoError(t, err)
		items = append(items, item)
	}

	client := new(mockDynamo)
	client.On("Query", mock.Anything, mock.MatchedBy(func(in *dynamodb.QueryInput) bool {
		return *in.IndexName == indexPending &&
			*in.ScanIndexForward &&
			*in.Limit == 2 &&
			assert.ObjectsAreEqual(str("PUSH"), in.ExpressionAttributeValues[":pk"])
	})).Return(&dynamodb.QueryOutput{Items: items}, nil).Once()

	got, err := newRepo(client).ListPending(context.Background(), domain.CategoryRestaurant, domain.ChannelPush, 2)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "n1", got[0].NotificationID)
	assert.Equal(t, "n2", got[1].NotificationID)
	client.AssertExpectations(t)
}

func TestRepo_UnknownCategory(t *testing.T) {
	client := new(mockDynamo)
	_, err := newRepo(client).ListPending(context.Background(), domain.Category("vendor"), domain.ChannelPush, 10)
	assert.ErrorIs(t, err, domain.ErrValidation)
	client.AssertNotCalled(t, "Query", mock.Anything, mock.Anything)
}
