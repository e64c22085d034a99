package rules

import (
	"fmt"

	"mailrules/internal/model"
)

// ValidateRule checks a decoded rule object and converts it to a Rule.
// Checks run in order and stop at the first failure.
func (v *Vocabulary) ValidateRule(raw any) (model.Rule, error) {
	obj, ok := raw.(map[string]any)
	if !ok {
		return model.Rule{}, ErrNotAnObject
	}
	for _, key := range []string{"predicate", "conditions", "actions"} {
		if _, ok := obj[key]; !ok {
			return model.Rule{}, fmt.Errorf("%w: %s", ErrMissingKey, key)
		}
	}

	pred, _ := obj["predicate"].(string)
	if !v.KnownCombinator(model.Combinator(pred)) {
		return model.Rule{}, fmt.Errorf("%w: %v", ErrInvalidCombinator, obj["predicate"])
	}

	rawConds, ok := obj["conditions"].([]any)
	if !ok {
		return model.Rule{}, fmt.Errorf("conditions: %w", ErrNotAList)
	}
	conds := make([]model.Condition, 0, len(rawConds))
	for i, rc := range rawConds {
		c, err := v.ValidateCondition(rc)
		if err != nil {
			return model.Rule{}, fmt.Errorf("condition %d: %w", i+1, err)
		}
		conds = append(conds, c)
	}

	rawActions, ok := obj["actions"].([]any)
	if !ok {
		return model.Rule{}, fmt.Errorf("actions: %w", ErrNotAList)
	}
	actions := make([]model.Action, 0, len(rawActions))
	for i, ra := range rawActions {
		a, err := v.ValidateAction(ra)
		if err != nil {
			return model.Rule{}, fmt.Errorf("action %d: %w", i+1, err)
		}
		actions = append(actions, a)
	}

	return model.Rule{
		Predicate:  model.Combinator(pred),
		Conditions: conds,
		Actions:    actions,
	}, nil
}

// ValidateCondition checks a decoded condition object.
func (v *Vocabulary) ValidateCondition(raw any) (model.Condition, error) {
	obj, ok := raw.(map[string]any)
	if !ok {
		return model.Condition{}, ErrNotAnObject
	}
	for _, key := range []string{"field", "predicate", "value"} {
		if _, ok := obj[key]; !ok {
			return model.Condition{}, fmt.Errorf("%w: %s", ErrMissingKey, key)
		}
	}

	fieldName, _ := obj["field"].(string)
	field := model.Field(fieldName)
	if _, ok := v.Field(field); !ok {
		return model.Condition{}, fmt.Errorf("%w: %v", ErrUnknownField, obj["field"])
	}

	predName, _ := obj["predicate"].(string)
	pred := model.CanonicalPredicate(predName)
	if !v.AllowsPredicate(field, pred) {
		return model.Condition{}, fmt.Errorf("%w: %v on %s", ErrInvalidPredicate, obj["predicate"], field)
	}

	value, ok := obj["value"].(string)
	if !ok {
		return model.Condition{}, fmt.Errorf("%w: %v", ErrInvalidValue, obj["value"])
	}

	return model.Condition{Field: field, Predicate: pred, Value: value}, nil
}

// ValidateAction checks a decoded action object.
func (v *Vocabulary) ValidateAction(raw any) (model.Action, error) {
	obj, ok := raw.(map[string]any)
	if !ok {
		return model.Action{}, ErrNotAnObject
	}
	rawType, ok := obj["type"]
	if !ok {
		return model.Action{}, fmt.Errorf("%w: type", ErrMissingKey)
	}
	typeName, _ := rawType.(string)
	t := model.ActionType(typeName)
	if !v.KnownAction(t) {
		return model.Action{}, fmt.Errorf("%w: %v", ErrUnknownAction, rawType)
	}

	switch t {
	case model.ActionMarkRead:
		val, ok := obj["value"]
		if !ok {
			return model.Action{}, fmt.Errorf("%w: value", ErrMissingKey)
		}
		read, ok := val.(bool)
		if !ok {
			return model.Action{}, fmt.Errorf("%w: mark_read needs a boolean, got %v", ErrInvalidActionValue, val)
		}
		return model.MarkRead(read), nil
	case model.ActionMoveMessage:
		val, ok := obj["value"]
		if !ok {
			return model.Action{}, fmt.Errorf("%w: value", ErrMissingKey)
		}
		dest, ok := val.(string)
		if !ok {
			return model.Action{}, fmt.Errorf("%w: move_message needs a string, got %v", ErrInvalidActionValue, val)
		}
		return model.MoveMessage(dest), nil
	default:
		return model.MarkUnread(), nil
	}
}
