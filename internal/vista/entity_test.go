package vista

import (
	"errors"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/titanops/vista-sync/internal/titan"
)

func TestParseEntityType(t *testing.T) {
	tests := map[string]EntityType{
		"contract":    Contract,
		"contracts":   Contract,
		"Contracts":   Contract,
		"work_order":  WorkOrder,
		"work-orders": WorkOrder,
		"workOrders":  WorkOrder,
		"Work Orders": WorkOrder,
		"employees":   Employee,
		"customer":    Customer,
		"vendors":     Vendor,
	}
	for in, want := range tests {
		got, err := ParseEntityType(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got, in)
	}

	_, err := ParseEntityType("trucks")
	assert.True(t, errors.Is(err, ErrUnknownEntityType))
}

func TestResultKey(t *testing.T) {
	assert.Equal(t, "contracts", Contract.ResultKey())
	assert.Equal(t, "workOrders", WorkOrder.ResultKey())
	assert.Equal(t, "employees", Employee.ResultKey())
	assert.Equal(t, "customers", Customer.ResultKey())
	assert.Equal(t, "vendors", Vendor.ResultKey())
}

func TestDescribe(t *testing.T) {
	for _, et := range AllTypes {
		d, err := Describe(et)
		require.NoError(t, err)
		assert.Equal(t, et, d.Type)
		assert.NotEmpty(t, d.Columns)
	}

	d, _ := Describe(Contract)
	assert.Equal(t, "vista_contracts", d.Table)
	assert.Equal(t, "contract_number", d.KeyColumn)
	assert.Equal(t, titan.KindCustomer, d.Kind)
	assert.Equal(t, "customer_number", d.MatchKey())
	assert.True(t, d.Departments)

	d, _ = Describe(WorkOrder)
	assert.Equal(t, titan.KindCustomer, d.Kind)
	assert.Equal(t, "customer_number", d.MatchKey())

	d, _ = Describe(Customer)
	assert.False(t, d.Departments)
	assert.Equal(t, "customer_number", d.MatchKey())

	d, _ = Describe(Employee)
	assert.Equal(t, "employee_number", d.MatchKey())

	_, err := Describe("truck")
	assert.True(t, errors.Is(err, ErrUnknownEntityType))
}

func TestMatchName(t *testing.T) {
	c, _ := Describe(Contract)
	assert.Equal(t, "Acme Corp", c.MatchName(Fields{"description": "Acme Tower", "customer_name": "Acme Corp"}, ""))
	assert.Equal(t, "", c.MatchName(Fields{"description": "Acme Tower"}, ""))

	w, _ := Describe(WorkOrder)
	assert.Equal(t, "Beta LLC", w.MatchName(Fields{"customer_name": "Beta LLC"}, ""))

	e, _ := Describe(Employee)
	assert.Equal(t, "Jon Smith", e.MatchName(Fields{"first_name": "Jon", "last_name": "Smith"}, "ignored"))
	assert.Equal(t, "Smith", e.MatchName(Fields{"last_name": "Smith"}, ""))

	v, _ := Describe(Vendor)
	assert.Equal(t, "Steel Supply", v.MatchName(Fields{}, " Steel Supply "))
}

func TestNewEntity(t *testing.T) {
	dept := uuid.New()
	rec := &Record{
		Key: "E-7", Name: "Jon Smith", LinkedDepartmentID: &dept,
		Fields: Fields{"first_name": "Jon", "last_name": "Smith", "email": "jon@example.com"},
	}
	e, _ := Describe(Employee)
	got := e.NewEntity(rec)
	assert.Equal(t, titan.KindEmployee, got.Kind)
	assert.Equal(t, "E-7", got.Number)
	assert.Equal(t, "Jon", got.FirstName)
	assert.Equal(t, "jon@example.com", got.Email)
	assert.Equal(t, &dept, got.DepartmentID)

	cust := &Record{Key: "C-1", Name: "Acme", City: "Austin", Fields: Fields{"zip": "78701"}}
	c, _ := Describe(Customer)
	got = c.NewEntity(cust)
	assert.Equal(t, titan.KindCustomer, got.Kind)
	assert.Equal(t, "Acme", got.Name)
	assert.Equal(t, "78701", got.Zip)
	assert.Equal(t, "Austin", got.City)

	ct, _ := Describe(Contract)
	got = ct.NewEntity(&Record{Key: "C-100", Name: "Acme Corp", State: "TX", Fields: Fields{"customer_number": "CU-9"}})
	assert.Equal(t, titan.NewEntity{Kind: titan.KindCustomer, Number: "CU-9", Name: "Acme Corp", State: "TX"}, got)
}

func TestFieldsText(t *testing.T) {
	f := Fields{"a": " x ", "b": nil, "c": ptr("y"), "d": true}
	assert.Equal(t, "x", f.Text("a"))
	assert.Equal(t, "", f.Text("b"))
	assert.Equal(t, "y", f.Text("c"))
	assert.Equal(t, "true", f.Text("d"))
	assert.Equal(t, "", f.Text("missing"))
}
