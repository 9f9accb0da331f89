// Package tools exposes the query layer to the admin agent as four named
// tools. Handlers always answer with text: results are serialized to JSON or
// a short sentence, and failures become an error sentence the model can read.
package tools

import (
	"context"
	"encoding/json"
	"fmt"

	"go.uber.org/zap"

	"github.com/nfrm/cary-services/internal/agent"
	"github.com/nfrm/cary-services/internal/logstore"
	"github.com/nfrm/cary-services/internal/provider"
	"github.com/nfrm/cary-services/internal/query"
)

const (
	QueryLogs     = "query_api_logs"
	CountLogs     = "count_api_logs"
	DistinctValue = "get_distinct_api_log_values"
	CountByGroup  = "get_api_call_count_by_group"
)

const (
	defaultQueryLimit    = 10
	defaultDistinctLimit = 100
	defaultGroupLimit    = 1000
)

type queryArgs struct {
	Filters []logstore.Filter `json:"filters"`
	Limit   int               `json:"limit"`
}

type distinctArgs struct {
	FieldName string            `json:"field_name"`
	Filters   []logstore.Filter `json:"filters"`
	Limit     int               `json:"limit"`
}

type groupArgs struct {
	GroupByField string            `json:"group_by_field"`
	Filters      []logstore.Filter `json:"filters"`
	Limit        int               `json:"limit"`
}

// Options binds the tools to a collection and sets the default scan limits.
type Options struct {
	Collection    string
	DistinctLimit int
	GroupLimit    int
}

// Register adds the four log tools to reg.
func Register(reg *agent.ToolRegistry, svc *query.Service, opts Options, logger *zap.Logger) error {
	collection := opts.Collection
	if collection == "" {
		collection = svc.Collection()
	}
	if opts.DistinctLimit <= 0 {
		opts.DistinctLimit = defaultDistinctLimit
	}
	if opts.GroupLimit <= 0 {
		opts.GroupLimit = defaultGroupLimit
	}
	h := &handlers{
		svc:           svc,
		collection:    collection,
		distinctLimit: opts.DistinctLimit,
		groupLimit:    opts.GroupLimit,
		logger:        logger,
	}

	defs := []struct {
		name, description string
		params            map[string]any
		fn                func(context.Context, *validator, string) string
	}{
		{
			name: QueryLogs,
			description: "Queries and retrieves full documents from the '" + collection + "' collection. " +
				"Use this to answer questions that require seeing the content of logs, such as \"Show me the latest 5 logs for user X\". " +
				"Do NOT use this for counting. Use the `count_api_logs` tool instead.",
			params: objectSchema(map[string]any{
				"filters": filtersSchema(),
				"limit":   limitSchema(defaultQueryLimit, "Maximum number of documents to return"),
			}),
			fn: h.query,
		},
		{
			name: CountLogs,
			description: "Counts documents in the '" + collection + "' collection based on filters. " +
				"Use this to answer questions like \"How many total API calls were made?\" or \"Count the number of calls to 'generate_ai_response'\". " +
				"This tool is much more efficient for counting than retrieving full documents. " +
				"For time-based questions like \"in the last 10 days\", calculate the date and use a filter like " +
				"{'field': 'timestamp', 'op': '>=', 'value': 'YYYY-MM-DDTHH:MM:SSZ'}.",
			params: objectSchema(map[string]any{
				"filters": filtersSchema(),
			}),
			fn: h.count,
		},
		{
			name: DistinctValue,
			description: "Gets distinct (unique) values for a specific field from the '" + collection + "' collection. " +
				"Use this to answer questions like \"Show me all distinct prompts\" or \"List all unique user emails\". " +
				"'limit' is the maximum number of logs to scan to find the distinct values.",
			params: objectSchema(map[string]any{
				"field_name": map[string]any{
					"type":        "string",
					"minLength":   1,
					"description": "Field to find unique values for, e.g. 'prompt', 'api_name', 'user_details.user_email'",
				},
				"filters": filtersSchema(),
				"limit":   limitSchema(opts.DistinctLimit, "Maximum number of logs to scan"),
			}, "field_name"),
			fn: h.distinct,
		},
		{
			name: CountByGroup,
			description: "Groups API logs by a specific field and returns the count for each group. " +
				"Use this to answer questions like \"Show me total API calls per user\" or \"What is the breakdown of API calls by api_name?\". " +
				"'limit' is the maximum number of logs to scan for this aggregation.",
			params: objectSchema(map[string]any{
				"group_by_field": map[string]any{
					"type":        "string",
					"minLength":   1,
					"description": "Field to group by, e.g. 'user_details.user_email', 'api_name'",
				},
				"filters": filtersSchema(),
				"limit":   limitSchema(opts.GroupLimit, "Maximum number of logs to scan"),
			}, "group_by_field"),
			fn: h.group,
		},
	}

	for _, d := range defs {
		v, err := newValidator(d.name, d.params)
		if err != nil {
			return err
		}
		fn := d.fn
		reg.Register(provider.NewTool(d.name, d.description, d.params),
			func(ctx context.Context, args string) (string, error) {
				return fn(ctx, v, args), nil
			})
	}
	return nil
}

type handlers struct {
	svc           *query.Service
	collection    string
	distinctLimit int
	groupLimit    int
	logger        *zap.Logger
}

func (h *handlers) invalid(tool string, err error) string {
	h.logger.Warn("rejected tool arguments", zap.String("tool", tool), zap.Error(err))
	return fmt.Sprintf("Error: %v. Fix the arguments of %s and try again.", err, tool)
}

func (h *handlers) query(ctx context.Context, v *validator, raw string) string {
	var args queryArgs
	if err := v.decode(raw, &args); err != nil {
		return h.invalid(QueryLogs, err)
	}
	if err := validateFilters(args.Filters); err != nil {
		return h.invalid(QueryLogs, err)
	}
	if args.Limit <= 0 {
		args.Limit = defaultQueryLimit
	}
	h.logger.Debug("executing log query", zap.Any("filters", args.Filters), zap.Int("limit", args.Limit))

	docs := h.svc.Query(ctx, query.QueryRequest{Collection: h.collection, Filters: args.Filters, Limit: args.Limit})
	if len(docs) == 0 {
		return "No documents found matching the criteria."
	}
	out, err := json.MarshalIndent(docs, "", "  ")
	if err != nil {
		return fmt.Sprintf("An error occurred while querying the log store: %v", err)
	}
	return string(out)
}

func (h *handlers) count(ctx context.Context, v *validator, raw string) string {
	var args queryArgs
	if err := v.decode(raw, &args); err != nil {
		return h.invalid(CountLogs, err)
	}
	if err := validateFilters(args.Filters); err != nil {
		return h.invalid(CountLogs, err)
	}
	h.logger.Debug("executing log count", zap.Any("filters", args.Filters))

	n := h.svc.Count(ctx, h.collection, args.Filters)
	return fmt.Sprintf("Found %d matching documents.", n)
}

func (h *handlers) distinct(ctx context.Context, v *validator, raw string) string {
	var args distinctArgs
	if err := v.decode(raw, &args); err != nil {
		return h.invalid(DistinctValue, err)
	}
	if err := validateFilters(args.Filters); err != nil {
		return h.invalid(DistinctValue, err)
	}
	if args.Limit <= 0 {
		args.Limit = h.distinctLimit
	}
	h.logger.Debug("executing distinct values",
		zap.String("field", args.FieldName), zap.Any("filters", args.Filters), zap.Int("limit", args.Limit))

	res := h.svc.DistinctValues(ctx, query.DistinctRequest{
		Collection: h.collection,
		Field:      args.FieldName,
		Filters:    args.Filters,
		Limit:      args.Limit,
	})
	if len(res.Values) == 0 {
		return "No distinct values found for the given criteria."
	}
	out, err := json.MarshalIndent(res.Values, "", "  ")
	if err != nil {
		return fmt.Sprintf("An error occurred while getting distinct values: %v", err)
	}
	return string(out) + truncationNote(res.Truncated, res.Scanned)
}

func (h *handlers) group(ctx context.Context, v *validator, raw string) string {
	var args groupArgs
	if err := v.decode(raw, &args); err != nil {
		return h.invalid(CountByGroup, err)
	}
	if err := validateFilters(args.Filters); err != nil {
		return h.invalid(CountByGroup, err)
	}
	if args.Limit <= 0 {
		args.Limit = h.groupLimit
	}
	h.logger.Debug("executing group and count",
		zap.String("field", args.GroupByField), zap.Any("filters", args.Filters), zap.Int("limit", args.Limit))

	res := h.svc.GroupAndCount(ctx, query.GroupRequest{
		Collection: h.collection,
		Field:      args.GroupByField,
		Filters:    args.Filters,
		Limit:      args.Limit,
	})
	if len(res.Counts) == 0 {
		return "No data found to group and count for the given criteria."
	}
	out, err := json.MarshalIndent(res.Counts, "", "  ")
	if err != nil {
		return fmt.Sprintf("An error occurred while grouping and counting data: %v", err)
	}
	return string(out) + truncationNote(res.Truncated, res.Scanned)
}

func truncationNote(truncated bool, scanned int) string {
	if !truncated {
		return ""
	}
	return fmt.Sprintf("\n\nNote: the scan stopped at its limit of %d documents, so this result may be incomplete.", scanned)
}
