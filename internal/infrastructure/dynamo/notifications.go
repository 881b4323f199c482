package dynamo

import (
	"context"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"

	"github.com/go-notify-nosql/internal/domain"
)

// eventMarkerPrefix keys the guard item that makes event ids unique within a
// table. Marker items carry no indexed attributes, so no GSI ever sees them.
const eventMarkerPrefix = "event#"

// notificationAPI is the slice of the DynamoDB client the repo uses.
type notificationAPI interface {
	dynamodb.QueryAPIClient
	GetItem(ctx context.Context, in *dynamodb.GetItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error)
	UpdateItem(ctx context.Context, in *dynamodb.UpdateItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.UpdateItemOutput, error)
	TransactWriteItems(ctx context.Context, in *dynamodb.TransactWriteItemsInput, optFns ...func(*dynamodb.Options)) (*dynamodb.TransactWriteItemsOutput, error)
}

// NotificationRepo provides typed DynamoDB operations for the per-category
// notification tables.
type NotificationRepo struct {
	client notificationAPI
	tables map[domain.Category]string
}

func NewNotificationRepo(client notificationAPI, tables map[domain.Category]string) *NotificationRepo {
	return &NotificationRepo{client: client, tables: tables}
}

// notificationItem adds the sparse pending index keys to the stored row.
type notificationItem struct {
	domain.Notification
	PendingKey  string `dynamodbav:"pending_key,omitempty"`
	PendingSort string `dynamodbav:"pending_sort,omitempty"`
}

// pendingSort orders the pending index by priority descending, then creation
// time ascending.
func pendingSort(n *domain.Notification) string {
	p := n.Priority
	if p < 0 {
		p = 0
	}
	if p > 99 {
		p = 99
	}
	return fmt.Sprintf("%02d#%020d#%s", 99-p, n.CreatedAt.UnixNano(), n.NotificationID)
}

func toItem(n *domain.Notification) notificationItem {
	item := notificationItem{Notification: *n}
	if n.Channel.Polled() && n.DeliveryStatus == domain.DeliveryPending {
		item.PendingKey = string(n.Channel)
		item.PendingSort = pendingSort(n)
	}
	return item
}

func (r *NotificationRepo) table(c domain.Category) (string, error) {
	t, ok := r.tables[c]
	if !ok || t == "" {
		return "", fmt.Errorf("no table for category %q: %w", c, domain.ErrValidation)
	}
	return t, nil
}

// Insert writes the row together with its event marker in one transaction.
// An existing event id yields domain.ErrConflict and writes nothing.
func (r *NotificationRepo) Insert(ctx context.Context, n *domain.Notification) error {
	t, err := r.table(n.Category)
	if err != nil {
		return err
	}
	item, err := attributevalue.MarshalMap(toItem(n))
	if err != nil {
		return fmt.Errorf("marshal notification: %w", err)
	}
	notExists := aws.String("attribute_not_exists(#id)")
	names := map[string]string{"#id": fieldNotificationID}
	_, err = r.client.TransactWriteItems(ctx, &dynamodb.TransactWriteItemsInput{
		TransactItems: []types.TransactWriteItem{
			{Put: &types.Put{
				TableName:                aws.String(t),
				Item:                     strKey(fieldNotificationID, eventMarkerPrefix+n.EventID),
				ConditionExpression:      notExists,
				ExpressionAttributeNames: names,
			}},
			{Put: &types.Put{
				TableName:                aws.String(t),
				Item:                     item,
				ConditionExpression:      notExists,
				ExpressionAttributeNames: names,
			}},
		},
	})
	if isTxConditionFailed(err) {
		return fmt.Errorf("event %s already stored: %w", n.EventID, domain.ErrConflict)
	}
	if err != nil {
		return fmt.Errorf("put notification: %w", err)
	}
	return nil
}

func (r *NotificationRepo) Get(ctx context.Context, category domain.Category, notificationID string) (*domain.Notification, error) {
	t, err := r.table(category)
	if err != nil {
		return nil, err
	}
	out, err := r.client.GetItem(ctx, &dynamodb.GetItemInput{
		TableName: aws.String(t),
		Key:       strKey(fieldNotificationID, notificationID),
	})
	if err != nil {
		return nil, err
	}
	if out.Item == nil {
		return nil, fmt.Errorf("notification %s: %w", notificationID, domain.ErrNotFound)
	}
	var item notificationItem
	if err := attributevalue.UnmarshalMap(out.Item, &item); err != nil {
		return nil, err
	}
	if item.EventID == "" {
		return nil, fmt.Errorf("notification %s: %w", notificationID, domain.ErrNotFound)
	}
	return &item.Notification, nil
}

// ListPending walks the sparse pending index for ch in priority order.
func (r *NotificationRepo) ListPending(ctx context.Context, category domain.Category, ch domain.Channel, limit int) ([]domain.Notification, error) {
	t, err := r.table(category)
	if err != nil {
		return nil, err
	}
	in := &dynamodb.QueryInput{
		TableName:              aws.String(t),
		IndexName:              aws.String(indexPending),
		KeyConditionExpression: aws.String("#pk = :pk"),
		ExpressionAttributeNames: map[string]string{
			"#pk": fieldPendingKey,
		},
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":pk": str(string(ch)),
		},
		ScanIndexForward: aws.Bool(true),
	}
	if limit > 0 {
		in.Limit = aws.Int32(int32(limit))
	}
	return r.query(ctx, in, limit)
}

// ListUnread queries the recipient_id-created_at GSI newest first and filters
// for UNREAD rows.
func (r *NotificationRepo) ListUnread(ctx context.Context, category domain.Category, recipientID string, limit int) ([]domain.Notification, error) {
	t, err := r.table(category)
	if err != nil {
		return nil, err
	}
	return r.query(ctx, &dynamodb.QueryInput{
		TableName:              aws.String(t),
		IndexName:              aws.String(indexRecipient),
		KeyConditionExpression: aws.String("#rid = :rid"),
		FilterExpression:       aws.String("#rs = :unread"),
		ExpressionAttributeNames: map[string]string{
			"#rid": fieldRecipientID,
			"#rs":  fieldReadStatus,
		},
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":rid":    str(recipientID),
			":unread": str(string(domain.ReadUnread)),
		},
		ScanIndexForward: aws.Bool(false),
	}, limit)
}

// MarkDelivered moves a PENDING row to DELIVERED and drops it from the
// pending index. It reports false when the row was no longer PENDING.
func (r *NotificationRepo) MarkDelivered(ctx context.Context, category domain.Category, notificationID string, at time.Time) (bool, error) {
	t, err := r.table(category)
	if err != nil {
		return false, err
	}
	ue, err := buildUpdateExpr(map[string]interface{}{
		fieldDeliveryStatus: domain.DeliveryDelivered,
		fieldDeliveredAt:    at.UTC(),
	})
	if err != nil {
		return false, err
	}
	ue.remove(fieldPendingKey, fieldPendingSort)
	cond := ue.where(map[string]types.AttributeValue{
		fieldDeliveryStatus: str(string(domain.DeliveryPending)),
	})
	_, err = r.client.UpdateItem(ctx, &dynamodb.UpdateItemInput{
		TableName:                 aws.String(t),
		Key:                       strKey(fieldNotificationID, notificationID),
		UpdateExpression:          aws.String(ue.Expr),
		ConditionExpression:       aws.String(cond),
		ExpressionAttributeNames:  ue.Names,
		ExpressionAttributeValues: ue.Values,
	})
	if isConditionFailed(err) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("mark delivered: %w", err)
	}
	return true, nil
}

// RecordFailure increments retry_count on a PENDING row and moves it to
// FAILED once the count reaches maxRetries. Zero means never give up.
func (r *NotificationRepo) RecordFailure(ctx context.Context, category domain.Category, notificationID string, maxRetries int) (domain.DeliveryStatus, error) {
	t, err := r.table(category)
	if err != nil {
		return "", err
	}
	out, err := r.client.UpdateItem(ctx, &dynamodb.UpdateItemInput{
		TableName:           aws.String(t),
		Key:                 strKey(fieldNotificationID, notificationID),
		UpdateExpression:    aws.String("ADD #rc :one"),
		ConditionExpression: aws.String("#ds = :pending"),
		ExpressionAttributeNames: map[string]string{
			"#rc": fieldRetryCount,
			"#ds": fieldDeliveryStatus,
		},
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":one":     &types.AttributeValueMemberN{Value: "1"},
			":pending": str(string(domain.DeliveryPending)),
		},
		ReturnValues: types.ReturnValueUpdatedNew,
	})
	if isConditionFailed(err) {
		return "", fmt.Errorf("pending notification %s: %w", notificationID, domain.ErrNotFound)
	}
	if err != nil {
		return "", fmt.Errorf("record failure: %w", err)
	}
	var counted struct {
		RetryCount int `dynamodbav:"retry_count"`
	}
	if err := attributevalue.UnmarshalMap(out.Attributes, &counted); err != nil {
		return "", err
	}
	if maxRetries <= 0 || counted.RetryCount < maxRetries {
		return domain.DeliveryPending, nil
	}

	ue, err := buildUpdateExpr(map[string]interface{}{fieldDeliveryStatus: domain.DeliveryFailed})
	if err != nil {
		return "", err
	}
	ue.remove(fieldPendingKey, fieldPendingSort)
	cond := ue.where(map[string]types.AttributeValue{
		fieldDeliveryStatus: str(string(domain.DeliveryPending)),
	})
	_, err = r.client.UpdateItem(ctx, &dynamodb.UpdateItemInput{
		TableName:                 aws.String(t),
		Key:                       strKey(fieldNotificationID, notificationID),
		UpdateExpression:          aws.String(ue.Expr),
		ConditionExpression:       aws.String(cond),
		ExpressionAttributeNames:  ue.Names,
		ExpressionAttributeValues: ue.Values,
	})
	if isConditionFailed(err) {
		return "", fmt.Errorf("pending notification %s: %w", notificationID, domain.ErrNotFound)
	}
	if err != nil {
		return "", fmt.Errorf("mark failed: %w", err)
	}
	return domain.DeliveryFailed, nil
}

// MarkRead flips a single UNREAD row owned by recipientID.
func (r *NotificationRepo) MarkRead(ctx context.Context, category domain.Category, notificationID, recipientID string, mark domain.ReadMark) (int, error) {
	t, err := r.table(category)
	if err != nil {
		return 0, err
	}
	ok, err := r.flipRead(ctx, t, notificationID, mark, readConds(true, map[string]types.AttributeValue{
		fieldRecipientID: str(recipientID),
	}))
	if err != nil || !ok {
		return 0, err
	}
	return 1, nil
}

// MarkReadByScope resolves the sibling rows through the group or hub index and
// flips each one with a conditional update, counting only rows that changed.
// A hub broadcast also re-stamps rows that were already read.
func (r *NotificationRepo) MarkReadByScope(ctx context.Context, category domain.Category, sel domain.ReadSelector, mark domain.ReadMark) (int, error) {
	t, err := r.table(category)
	if err != nil {
		return 0, err
	}
	in, err := scopeQuery(t, sel)
	if err != nil {
		return 0, err
	}

	var ids []string
	p := dynamodb.NewQueryPaginator(r.client, in)
	for p.HasMorePages() {
		page, err := p.NextPage(ctx)
		if err != nil {
			return 0, fmt.Errorf("query siblings: %w", err)
		}
		var keys []struct {
			ID string `dynamodbav:"notification_id"`
		}
		if err := attributevalue.UnmarshalListOfMaps(page.Items, &keys); err != nil {
			return 0, err
		}
		for _, k := range keys {
			ids = append(ids, k.ID)
		}
	}

	conds := readConds(true, nil)
	if sel.Scope == domain.ScopeHubBroadcast {
		conds = readConds(false, map[string]types.AttributeValue{fieldHubID: str(sel.HubID)})
	}
	count := 0
	for _, id := range ids {
		ok, err := r.flipRead(ctx, t, id, mark, conds)
		if err != nil {
			return count, err
		}
		if ok {
			count++
		}
	}
	return count, nil
}

func scopeQuery(table string, sel domain.ReadSelector) (*dynamodb.QueryInput, error) {
	in := &dynamodb.QueryInput{
		TableName:            aws.String(table),
		ProjectionExpression: aws.String("#id"),
		ExpressionAttributeNames: map[string]string{
			"#id": fieldNotificationID,
		},
		ExpressionAttributeValues: map[string]types.AttributeValue{},
	}
	switch sel.Scope {
	case domain.ScopeGroup, domain.ScopeHub:
		index, keyField, keyValue := indexGroup, fieldGroupID, sel.GroupID
		if sel.Scope == domain.ScopeHub {
			index, keyField, keyValue = indexHub, fieldHubID, sel.HubID
		}
		if sel.EventPrefix == "" || keyValue == "" {
			return nil, fmt.Errorf("%s scope needs event prefix and key: %w", sel.Scope, domain.ErrValidation)
		}
		in.IndexName = aws.String(index)
		in.KeyConditionExpression = aws.String("#k = :k AND begins_with(#ev, :prefix)")
		in.FilterExpression = aws.String("#sr = :true AND #rs = :unread")
		in.ExpressionAttributeNames["#k"] = keyField
		in.ExpressionAttributeNames["#ev"] = fieldEventID
		in.ExpressionAttributeNames["#sr"] = fieldSharedRead
		in.ExpressionAttributeNames["#rs"] = fieldReadStatus
		in.ExpressionAttributeValues[":unread"] = str(string(domain.ReadUnread))
		in.ExpressionAttributeValues[":k"] = str(keyValue)
		in.ExpressionAttributeValues[":prefix"] = str(sel.EventPrefix)
		in.ExpressionAttributeValues[":true"] = &types.AttributeValueMemberBOOL{Value: true}
	case domain.ScopeHubBroadcast:
		if sel.HubID == "" {
			return nil, fmt.Errorf("hub broadcast needs hub id: %w", domain.ErrValidation)
		}
		in.IndexName = aws.String(indexHub)
		in.KeyConditionExpression = aws.String("#k = :k")
		in.ExpressionAttributeNames["#k"] = fieldHubID
		in.ExpressionAttributeValues[":k"] = str(sel.HubID)
	default:
		return nil, fmt.Errorf("scope %q is not a batch scope: %w", sel.Scope, domain.ErrValidation)
	}
	return in, nil
}

// readConds is the condition set of a read flip. Every value must match the
// stored row; onlyUnread adds the UNREAD guard.
func readConds(onlyUnread bool, extra map[string]types.AttributeValue) map[string]types.AttributeValue {
	conds := make(map[string]types.AttributeValue, len(extra)+1)
	if onlyUnread {
		conds[fieldReadStatus] = str(string(domain.ReadUnread))
	}
	for k, v := range extra {
		conds[k] = v
	}
	return conds
}

// flipRead sets the read stamp on one row when every condition holds. conds
// must not be empty so a row deleted since the query is never recreated.
func (r *NotificationRepo) flipRead(ctx context.Context, table, notificationID string, mark domain.ReadMark, conds map[string]types.AttributeValue) (bool, error) {
	ue, err := buildUpdateExpr(map[string]interface{}{
		fieldReadStatus:   domain.ReadRead,
		fieldReadAt:       mark.At.UTC(),
		fieldReadByUserID: mark.ByUserID,
	})
	if err != nil {
		return false, err
	}
	cond := ue.where(conds)
	_, err = r.client.UpdateItem(ctx, &dynamodb.UpdateItemInput{
		TableName:                 aws.String(table),
		Key:                       strKey(fieldNotificationID, notificationID),
		UpdateExpression:          aws.String(ue.Expr),
		ConditionExpression:       aws.String(cond),
		ExpressionAttributeNames:  ue.Names,
		ExpressionAttributeValues: ue.Values,
	})
	if isConditionFailed(err) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("mark read: %w", err)
	}
	return true, nil
}

func (r *NotificationRepo) query(ctx context.Context, in *dynamodb.QueryInput, limit int) ([]domain.Notification, error) {
	var out []domain.Notification
	p := dynamodb.NewQueryPaginator(r.client, in)
	for p.HasMorePages() {
		page, err := p.NextPage(ctx)
		if err != nil {
			return nil, fmt.Errorf("query notifications: %w", err)
		}
		var items []notificationItem
		if err := attributevalue.UnmarshalListOfMaps(page.Items, &items); err != nil {
			return nil, err
		}
		for _, it := range items {
			out = append(out, it.Notification)
			if limit > 0 && len(out) >= limit {
				return out, nil
			}
		}
	}
	return out, nil
}
