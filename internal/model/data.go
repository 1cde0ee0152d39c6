package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// RawRecord is one source row before normalization
type RawRecord struct {
	Origin string                 `json:"origin"` // file path, mail uid, endpoint or entry file
	Fields map[string]interface{} `json:"fields"`
}

// CanonicalRecord is a normalized record keyed by canonical field name
type CanonicalRecord map[string]interface{}

// FieldKind is the coercion target of a canonical field
type FieldKind int

const (
	KindString FieldKind = iota
	KindDate
	KindTimestamp
	KindFloat
	KindMoney
)

// Canonical field names.
const (
	FieldRouteID            = "route_id"
	FieldRouteDate          = "route_date"
	FieldDriverName         = "driver_name"
	FieldVehicleID          = "vehicle_id"
	FieldCustomerName       = "customer_name"
	FieldOriginAddress      = "origin_address"
	FieldDestinationAddress = "destination_address"
	FieldStatus             = "status"
	FieldEmail              = "email"
	FieldPhone              = "phone"
	FieldStartTime          = "start_time"
	FieldEndTime            = "end_time"
	FieldTotalMiles         = "total_miles"
	FieldLoadWeight         = "load_weight"
	FieldFuelGallons        = "fuel_gallons"
	FieldRevenue            = "revenue"
	FieldFuelCost           = "fuel_cost"
)

// CanonicalFields maps every canonical field to its kind.
var CanonicalFields = map[string]FieldKind{
	FieldRouteID:            KindString,
	FieldRouteDate:          KindDate,
	FieldDriverName:         KindString,
	FieldVehicleID:          KindString,
	FieldCustomerName:       KindString,
	FieldOriginAddress:      KindString,
	FieldDestinationAddress: KindString,
	FieldStatus:             KindString,
	FieldEmail:              KindString,
	FieldPhone:              KindString,
	FieldStartTime:          KindTimestamp,
	FieldEndTime:            KindTimestamp,
	FieldTotalMiles:         KindFloat,
	FieldLoadWeight:         KindFloat,
	FieldFuelGallons:        KindFloat,
	FieldRevenue:            KindMoney,
	FieldFuelCost:           KindMoney,
}

// String returns the field as a string, or "" when absent or not a string.
func (r CanonicalRecord) String(field string) string {
	s, _ := r[field].(string)
	return s
}

// Date returns the field as a time, or the zero time.
func (r CanonicalRecord) Date(field string) time.Time {
	t, _ := r[field].(time.Time)
	return t
}

// Money returns the field as a decimal, or zero.
func (r CanonicalRecord) Money(field string) decimal.Decimal {
	d, _ := r[field].(decimal.Decimal)
	return d
}

// Float returns the field as a float64, or zero.
func (r CanonicalRecord) Float(field string) float64 {
	f, _ := r[field].(float64)
	return f
}
