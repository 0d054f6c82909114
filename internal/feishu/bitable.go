package feishu

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	lark "github.com/larksuite/oapi-sdk-go/v3"
	larkbitable "github.com/larksuite/oapi-sdk-go/v3/service/bitable/v1"

	"sheetsync/internal/model"
	"sheetsync/internal/store"
)

const recordPageSize = 100

// Field types whose values are epoch milliseconds.
const (
	fieldTypeDateTime     = 5
	fieldTypeCreatedTime  = 1001
	fieldTypeModifiedTime = 1002
)

// BitableTable exposes one Lark Bitable table as a positional store.Table.
// Columns are the table's fields in listing order; rows are the records in
// listing order. Record ids from the last Snapshot map positions to records.
// Date-time fields are exposed as model.CellTimeLayout text in loc and
// written back as epoch milliseconds.
type BitableTable struct {
	client   *lark.Client
	appToken string
	tableID  string
	loc      *time.Location

	mu      sync.Mutex
	header  []string
	dates   map[string]bool
	records []string
}

func NewBitableTable(client *lark.Client, appToken, tableID string, loc *time.Location) *BitableTable {
	if loc == nil {
		loc = time.UTC
	}
	return &BitableTable{client: client, appToken: appToken, tableID: tableID, loc: loc}
}

func (t *BitableTable) Snapshot(ctx context.Context) (model.Snapshot, error) {
	header, dates, err := t.listFields(ctx)
	if err != nil {
		return model.Snapshot{}, err
	}
	index := make(map[string]int, len(header))
	for i, h := range header {
		index[h] = i
	}

	snap := model.Snapshot{Header: header}
	var ids []string
	pageToken := ""
	for {
		builder := larkbitable.NewListAppTableRecordReqBuilder().
			AppToken(t.appToken).
			TableId(t.tableID).
			PageSize(recordPageSize)
		if pageToken != "" {
			builder.PageToken(pageToken)
		}
		resp, err := t.client.Bitable.V1.AppTableRecord.List(ctx, builder.Build())
		if err != nil {
			return model.Snapshot{}, fmt.Errorf("list bitable records: %w", err)
		}
		if !resp.Success() {
			return model.Snapshot{}, &APIError{Code: resp.Code, Msg: resp.Msg}
		}
		if resp.Data == nil {
			break
		}
		for _, item := range resp.Data.Items {
			if item == nil || item.RecordId == nil {
				continue
			}
			row := make(model.Row, len(header))
			for name, v := range item.Fields {
				if i, ok := index[name]; ok {
					row[i] = t.fromField(v, dates[name])
				}
			}
			snap.Rows = append(snap.Rows, row)
			ids = append(ids, *item.RecordId)
		}
		if resp.Data.HasMore == nil || !*resp.Data.HasMore || resp.Data.PageToken == nil {
			break
		}
		pageToken = *resp.Data.PageToken
	}

	t.mu.Lock()
	t.header = header
	t.dates = dates
	t.records = ids
	t.mu.Unlock()
	return snap, nil
}

func (t *BitableTable) listFields(ctx context.Context) ([]string, map[string]bool, error) {
	req := larkbitable.NewListAppTableFieldReqBuilder().
		AppToken(t.appToken).
		TableId(t.tableID).
		Build()
	resp, err := t.client.Bitable.V1.AppTableField.List(ctx, req)
	if err != nil {
		return nil, nil, fmt.Errorf("list bitable fields: %w", err)
	}
	if !resp.Success() {
		return nil, nil, &APIError{Code: resp.Code, Msg: resp.Msg}
	}
	dates := map[string]bool{}
	if resp.Data == nil {
		return nil, dates, nil
	}
	header := make([]string, 0, len(resp.Data.Items))
	for _, f := range resp.Data.Items {
		if f == nil || f.FieldName == nil {
			continue
		}
		header = append(header, *f.FieldName)
		if f.Type != nil {
			switch *f.Type {
			case fieldTypeDateTime, fieldTypeCreatedTime, fieldTypeModifiedTime:
				dates[*f.FieldName] = true
			}
		}
	}
	return header, dates, nil
}

// recordAt resolves a position against the last snapshot.
func (t *BitableTable) recordAt(row int) (string, []string, map[string]bool, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if row < 0 || row >= len(t.records) {
		return "", nil, nil, fmt.Errorf("row %d: %w", row, store.ErrRowOutOfRange)
	}
	return t.records[row], t.header, t.dates, nil
}

func (t *BitableTable) UpdateCells(ctx context.Context, row int, cells map[int]any) error {
	recordID, header, dates, err := t.recordAt(row)
	if err != nil {
		return err
	}
	fields := make(map[string]interface{}, len(cells))
	for col, v := range cells {
		if col < 0 || col >= len(header) {
			return fmt.Errorf("update bitable row %d: column %d out of range", row, col)
		}
		if fields[header[col]], err = t.toField(v, dates[header[col]]); err != nil {
			return fmt.Errorf("update bitable row %d: %s: %w", row, header[col], err)
		}
	}
	req := larkbitable.NewUpdateAppTableRecordReqBuilder().
		AppToken(t.appToken).
		TableId(t.tableID).
		RecordId(recordID).
		AppTableRecord(&larkbitable.AppTableRecord{Fields: fields}).
		Build()
	resp, err := t.client.Bitable.V1.AppTableRecord.Update(ctx, req)
	if err != nil {
		return fmt.Errorf("update bitable record: %w", err)
	}
	if !resp.Success() {
		return &APIError{Code: resp.Code, Msg: resp.Msg}
	}
	return nil
}

func (t *BitableTable) DeleteRow(ctx context.Context, row int) error {
	recordID, _, _, err := t.recordAt(row)
	if err != nil {
		return err
	}
	if err := t.deleteRecord(ctx, recordID); err != nil {
		return err
	}
	t.mu.Lock()
	t.records = append(t.records[:row], t.records[row+1:]...)
	t.mu.Unlock()
	return nil
}

func (t *BitableTable) deleteRecord(ctx context.Context, recordID string) error {
	req := larkbitable.NewDeleteAppTableRecordReqBuilder().
		AppToken(t.appToken).
		TableId(t.tableID).
		RecordId(recordID).
		Build()
	resp, err := t.client.Bitable.V1.AppTableRecord.Delete(ctx, req)
	if err != nil {
		return fmt.Errorf("delete bitable record: %w", err)
	}
	if !resp.Success() {
		return &APIError{Code: resp.Code, Msg: resp.Msg}
	}
	return nil
}

func (t *BitableTable) AppendRow(ctx context.Context, cells model.Row) error {
	t.mu.Lock()
	header, dates := t.header, t.dates
	t.mu.Unlock()
	if header == nil {
		var err error
		if header, dates, err = t.listFields(ctx); err != nil {
			return err
		}
	}
	id, err := t.createRecord(ctx, header, dates, cells)
	if err != nil {
		return err
	}
	t.mu.Lock()
	t.header = header
	t.dates = dates
	t.records = append(t.records, id)
	t.mu.Unlock()
	return nil
}

func (t *BitableTable) createRecord(ctx context.Context, header []string, dates map[string]bool, cells model.Row) (string, error) {
	fields := make(map[string]interface{}, len(cells))
	for i, v := range cells {
		if i >= len(header) || model.IsEmpty(v) {
			continue
		}
		fv, err := t.toField(v, dates[header[i]])
		if err != nil {
			return "", fmt.Errorf("create bitable record: %s: %w", header[i], err)
		}
		fields[header[i]] = fv
	}
	req := larkbitable.NewCreateAppTableRecordReqBuilder().
		AppToken(t.appToken).
		TableId(t.tableID).
		AppTableRecord(&larkbitable.AppTableRecord{Fields: fields}).
		Build()
	resp, err := t.client.Bitable.V1.AppTableRecord.Create(ctx, req)
	if err != nil {
		return "", fmt.Errorf("create bitable record: %w", err)
	}
	if !resp.Success() {
		return "", &APIError{Code: resp.Code, Msg: resp.Msg}
	}
	if resp.Data == nil || resp.Data.Record == nil || resp.Data.Record.RecordId == nil {
		return "", fmt.Errorf("create bitable record: unexpected nil record in response")
	}
	return *resp.Data.Record.RecordId, nil
}

// Replace deletes every record and recreates the rows. Fields are not
// altered: snap.Header must name existing fields.
func (t *BitableTable) Replace(ctx context.Context, snap model.Snapshot) error {
	if _, err := t.Snapshot(ctx); err != nil {
		return err
	}
	t.mu.Lock()
	existing := append([]string(nil), t.records...)
	dates := t.dates
	known := make(map[string]bool, len(t.header))
	for _, h := range t.header {
		known[h] = true
	}
	t.mu.Unlock()
	for _, h := range snap.Header {
		if !known[h] {
			return fmt.Errorf("replace bitable: field %q does not exist", h)
		}
	}

	for _, id := range existing {
		if err := t.deleteRecord(ctx, id); err != nil {
			return err
		}
	}
	ids := make([]string, 0, len(snap.Rows))
	for _, r := range snap.Rows {
		id, err := t.createRecord(ctx, snap.Header, dates, r)
		if err != nil {
			return err
		}
		ids = append(ids, id)
	}
	t.mu.Lock()
	t.header = append([]string(nil), snap.Header...)
	t.records = ids
	t.mu.Unlock()
	return nil
}

// fromField converts a record value to a cell. Date-time values become
// wall-clock text in t.loc.
func (t *BitableTable) fromField(v interface{}, isDate bool) any {
	if isDate {
		if ms, ok := epochMillis(v); ok {
			return model.FormatWallClock(time.UnixMilli(ms), t.loc)
		}
	}
	return normalizeField(v)
}

// toField converts a cell to the value Bitable expects for the field.
func (t *BitableTable) toField(v any, isDate bool) (interface{}, error) {
	if !isDate {
		return v, nil
	}
	switch c := v.(type) {
	case nil:
		return nil, nil
	case time.Time:
		return c.UnixMilli(), nil
	case string:
		if strings.TrimSpace(c) == "" {
			return nil, nil
		}
		parsed, err := model.ParseWallClock(c, t.loc)
		if err != nil {
			return nil, err
		}
		return parsed.UnixMilli(), nil
	default:
		if ms, ok := epochMillis(v); ok {
			return ms, nil
		}
		return nil, fmt.Errorf("unsupported date value %T", v)
	}
}

func epochMillis(v interface{}) (int64, bool) {
	switch n := v.(type) {
	case float64:
		return int64(n), true
	case int64:
		return n, true
	case int:
		return int64(n), true
	case json.Number:
		i, err := n.Int64()
		return i, err == nil
	default:
		return 0, false
	}
}

// normalizeField flattens Bitable rich values to plain cells: text segments
// are joined, single-element arrays unwrapped.
func normalizeField(v interface{}) any {
	switch t := v.(type) {
	case []interface{}:
		var sb strings.Builder
		for _, seg := range t {
			m, ok := seg.(map[string]interface{})
			if !ok {
				if len(t) == 1 {
					return seg
				}
				sb.WriteString(fmt.Sprint(seg))
				continue
			}
			if text, ok := m["text"].(string); ok {
				sb.WriteString(text)
			}
		}
		return sb.String()
	case map[string]interface{}:
		if text, ok := t["text"].(string); ok {
			return text
		}
		return fmt.Sprint(t)
	default:
		return v
	}
}
