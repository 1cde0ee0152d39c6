package validation

import "route-pipeline/internal/model"

// RouteDataRuleSet names the built-in rule set used when a collector names none.
const RouteDataRuleSet = "route_data"

// RouteDataRules returns the default rules for route records.
func RouteDataRules() []model.ValidationRule {
	w, e := model.SeverityWarning, model.SeverityError
	return []model.ValidationRule{
		{FieldName: model.FieldRouteID, RuleType: model.RuleRequired, Severity: e, Message: "Route ID is required"},
		{FieldName: model.FieldRouteID, RuleType: model.RuleLength, Severity: e, Message: "Route ID must be 1-50 characters",
			Parameters: map[string]interface{}{"min_length": 1, "max_length": 50}},
		{FieldName: model.FieldRouteDate, RuleType: model.RuleRequired, Severity: e, Message: "Route date is required"},
		{FieldName: model.FieldRouteDate, RuleType: model.RuleTypeCheck, Severity: e, Message: "Route date must be a valid date",
			Parameters: map[string]interface{}{"type": "date"}},
		{FieldName: model.FieldTotalMiles, RuleType: model.RuleTypeCheck, Severity: w, Message: "Total miles must be a number",
			Parameters: map[string]interface{}{"type": "float"}},
		{FieldName: model.FieldTotalMiles, RuleType: model.RulePositive, Severity: w, Message: "Total miles should be positive"},
		{FieldName: model.FieldTotalMiles, RuleType: model.RuleRange, Severity: w, Message: "Total miles seems unrealistic",
			Parameters: map[string]interface{}{"min": 0, "max": 5000}},
		{FieldName: model.FieldRevenue, RuleType: model.RuleTypeCheck, Severity: w, Message: "Revenue must be a number",
			Parameters: map[string]interface{}{"type": "float"}},
		{FieldName: model.FieldRevenue, RuleType: model.RulePositive, Severity: w, Message: "Revenue should be positive"},
		{FieldName: model.FieldDriverName, RuleType: model.RuleLength, Severity: w, Message: "Driver name should be 2-100 characters",
			Parameters: map[string]interface{}{"min_length": 2, "max_length": 100}},
		{FieldName: model.FieldEmail, RuleType: model.RuleEmail, Severity: w, Message: "Invalid email format"},
		{FieldName: model.FieldPhone, RuleType: model.RulePhone, Severity: w, Message: "Invalid phone number format"},
		{FieldName: model.FieldStatus, RuleType: model.RuleChoices, Severity: w, Message: "Unknown route status",
			Parameters: map[string]interface{}{
				"choices":        []interface{}{"scheduled", "in_progress", "completed", "cancelled", "delayed"},
				"case_sensitive": false,
			}},
	}
}
