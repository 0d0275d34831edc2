package dynamo

import (
	"fmt"
	"sort"
	"strings"

	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
)

// strKey builds a DynamoDB primary key map with a single string attribute.
func strKey(name, value string) map[string]types.AttributeValue {
	return map[string]types.AttributeValue{
		name: &types.AttributeValueMemberS{Value: value},
	}
}

// updateExpr is an UpdateItem expression plus its condition, sharing one
// name/value namespace.
type updateExpr struct {
	Expr   string
	Cond   string
	Names  map[string]string
	Values map[string]types.AttributeValue
	conds  []string
}

// buildUpdateExpr converts a map of field->value into a DynamoDB update expression.
// A nil value removes the attribute. Keys are sorted so the output is deterministic.
func buildUpdateExpr(updates map[string]interface{}) (*updateExpr, error) {
	if len(updates) == 0 {
		return nil, fmt.Errorf("no fields to update")
	}
	keys := make([]string, 0, len(updates))
	for k := range updates {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	ue := &updateExpr{
		Names:  make(map[string]string),
		Values: make(map[string]types.AttributeValue),
	}
	var sets, removes []string
	for i, k := range keys {
		nameKey := fmt.Sprintf("#f%d", i)
		ue.Names[nameKey] = k
		v := updates[k]
		if v == nil {
			removes = append(removes, nameKey)
			continue
		}
		av, err := attributevalue.Marshal(v)
		if err != nil {
			return nil, fmt.Errorf("marshal field %s: %w", k, err)
		}
		valueKey := fmt.Sprintf(":v%d", i)
		ue.Values[valueKey] = av
		sets = append(sets, fmt.Sprintf("%s = %s", nameKey, valueKey))
	}

	var parts []string
	if len(sets) > 0 {
		parts = append(parts, "SET "+strings.Join(sets, ", "))
	}
	if len(removes) > 0 {
		parts = append(parts, "REMOVE "+strings.Join(removes, ", "))
	}
	ue.Expr = strings.Join(parts, " ")
	return ue, nil
}

// requireExists adds attribute_exists(attr) to the condition.
func (ue *updateExpr) requireExists(attr string) {
	ue.addCond(func(name string) string { return fmt.Sprintf("attribute_exists(%s)", name) }, attr)
}

// requireEqual adds attr = value to the condition. An empty value means the
// attribute must be absent, since cleared fields are removed rather than blanked.
func (ue *updateExpr) requireEqual(attr, value string) {
	if value == "" {
		ue.addCond(func(name string) string { return fmt.Sprintf("attribute_not_exists(%s)", name) }, attr)
		return
	}
	ue.addCond(func(name string) string {
		valueKey := fmt.Sprintf(":c%d", len(ue.conds))
		ue.Values[valueKey] = &types.AttributeValueMemberS{Value: value}
		return fmt.Sprintf("%s = %s", name, valueKey)
	}, attr)
}

func (ue *updateExpr) addCond(render func(name string) string, attr string) {
	nameKey := fmt.Sprintf("#c%d", len(ue.conds))
	ue.Names[nameKey] = attr
	ue.conds = append(ue.conds, render(nameKey))
	ue.Cond = strings.Join(ue.conds, " AND ")
}
