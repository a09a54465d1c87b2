package vista

import (
	"strings"

	"github.com/rotisserie/eris"

	"github.com/titanops/vista-sync/internal/titan"
)

// EntityType is one of the exported ERP record kinds.
type EntityType string

// Entity types.
const (
	Contract  EntityType = "contract"
	WorkOrder EntityType = "work_order"
	Employee  EntityType = "employee"
	Customer  EntityType = "customer"
	Vendor    EntityType = "vendor"
)

// AllTypes lists entity types in import order.
var AllTypes = []EntityType{Contract, WorkOrder, Employee, Customer, Vendor}

// ParseEntityType accepts singular, plural, kebab and camel forms
// ("work-orders", "workOrders", "work_order").
func ParseEntityType(s string) (EntityType, error) {
	k := strings.ToLower(strings.TrimSpace(s))
	k = strings.NewReplacer("-", "", "_", "", " ", "").Replace(k)
	k = strings.TrimSuffix(k, "s")
	switch k {
	case "contract":
		return Contract, nil
	case "workorder":
		return WorkOrder, nil
	case "employee":
		return Employee, nil
	case "customer":
		return Customer, nil
	case "vendor":
		return Vendor, nil
	}
	return "", eris.Wrapf(ErrUnknownEntityType, "vista: parse %q", s)
}

// ResultKey is the JSON key used for per-type results.
func (t EntityType) ResultKey() string {
	switch t {
	case WorkOrder:
		return "workOrders"
	default:
		return string(t) + "s"
	}
}

// ColumnKind selects how a business column is coerced.
type ColumnKind int

// Column kinds.
const (
	ColText ColumnKind = iota
	ColMoney
	ColDate
	ColBool
)

// Column is a type-specific business column.
type Column struct {
	Name string
	Kind ColumnKind
}

// EntityDescriptor parameterizes the generic engine for one entity type.
type EntityDescriptor struct {
	Type      EntityType
	Table     string
	KeyColumn string
	// MatchKeyColumn holds the value compared with internal entity numbers.
	// Empty means KeyColumn.
	MatchKeyColumn string
	// Kind is the internal entity kind records link to and promote into.
	Kind titan.Kind
	// Departments is set for types that carry a department code.
	Departments bool
	Columns     []Column

	matchName func(f Fields) string
	newEntity func(r *Record) titan.NewEntity
}

var descriptors = map[EntityType]*EntityDescriptor{
	Contract: {
		Type:           Contract,
		Table:          "vista_contracts",
		KeyColumn:      "contract_number",
		MatchKeyColumn: "customer_number",
		Kind:           titan.KindCustomer,
		Departments:    true,
		Columns: []Column{
			{"description", ColText},
			{"customer_number", ColText},
			{"customer_name", ColText},
			{"contract_amount", ColMoney},
			{"billed_amount", ColMoney},
			{"retainage_amount", ColMoney},
			{"status", ColText},
			{"project_manager", ColText},
			{"start_date", ColDate},
			{"completion_date", ColDate},
		},
		matchName: customerName,
		newEntity: newCustomerFromJob,
	},
	WorkOrder: {
		Type:           WorkOrder,
		Table:          "vista_work_orders",
		KeyColumn:      "work_order_number",
		MatchKeyColumn: "customer_number",
		Kind:           titan.KindCustomer,
		Departments:    true,
		Columns: []Column{
			{"description", ColText},
			{"customer_number", ColText},
			{"customer_name", ColText},
			{"service_site", ColText},
			{"status", ColText},
			{"work_order_amount", ColMoney},
			{"scheduled_date", ColDate},
			{"completed_date", ColDate},
		},
		matchName: customerName,
		newEntity: newCustomerFromJob,
	},
	Employee: {
		Type:        Employee,
		Table:       "vista_employees",
		KeyColumn:   "employee_number",
		Kind:        titan.KindEmployee,
		Departments: true,
		Columns: []Column{
			{"first_name", ColText},
			{"last_name", ColText},
			{"email", ColText},
			{"phone", ColText},
			{"craft", ColText},
			{"class", ColText},
			{"hire_date", ColDate},
			{"termination_date", ColDate},
			{"active", ColBool},
		},
		matchName: func(f Fields) string {
			return strings.TrimSpace(f.Text("first_name") + " " + f.Text("last_name"))
		},
		newEntity: func(r *Record) titan.NewEntity {
			return titan.NewEntity{
				Kind:         titan.KindEmployee,
				Number:       r.Key,
				FirstName:    r.Fields.Text("first_name"),
				LastName:     r.Fields.Text("last_name"),
				Email:        r.Fields.Text("email"),
				Phone:        r.Fields.Text("phone"),
				DepartmentID: r.LinkedDepartmentID,
			}
		},
	},
	Customer: {
		Type:      Customer,
		Table:     "vista_customers",
		KeyColumn: "customer_number",
		Kind:      titan.KindCustomer,
		Columns: []Column{
			{"address", ColText},
			{"zip", ColText},
			{"phone", ColText},
			{"email", ColText},
			{"contact_name", ColText},
		},
		newEntity: newParty(titan.KindCustomer),
	},
	Vendor: {
		Type:      Vendor,
		Table:     "vista_vendors",
		KeyColumn: "vendor_number",
		Kind:      titan.KindVendor,
		Columns: []Column{
			{"address", ColText},
			{"zip", ColText},
			{"phone", ColText},
			{"email", ColText},
			{"vendor_type", ColText},
			{"tax_id", ColText},
		},
		newEntity: newParty(titan.KindVendor),
	},
}

// Describe returns the descriptor for t.
func Describe(t EntityType) (*EntityDescriptor, error) {
	d, ok := descriptors[t]
	if !ok {
		return nil, eris.Wrapf(ErrUnknownEntityType, "vista: describe %q", t)
	}
	return d, nil
}

// MatchName derives the similarity name from mapped fields. Types without a
// derivation use the mapped "name" field.
func (d *EntityDescriptor) MatchName(f Fields, mapped string) string {
	if d.matchName == nil {
		return strings.TrimSpace(mapped)
	}
	return d.matchName(f)
}

// NewEntity builds the internal entity created when r is promoted.
func (d *EntityDescriptor) NewEntity(r *Record) titan.NewEntity {
	return d.newEntity(r)
}

// MatchKey returns the column compared with internal entity numbers.
func (d *EntityDescriptor) MatchKey() string {
	if d.MatchKeyColumn != "" {
		return d.MatchKeyColumn
	}
	return d.KeyColumn
}

// ColumnNames returns the business column names in declaration order.
func (d *EntityDescriptor) ColumnNames() []string {
	out := make([]string, len(d.Columns))
	for i, c := range d.Columns {
		out[i] = c.Name
	}
	return out
}

func customerName(f Fields) string {
	return f.Text("customer_name")
}

// newCustomerFromJob creates the customer a contract or work order is
// billed to.
func newCustomerFromJob(r *Record) titan.NewEntity {
	return titan.NewEntity{
		Kind:   titan.KindCustomer,
		Number: r.Fields.Text("customer_number"),
		Name:   r.Name,
		City:   r.City,
		State:  r.State,
	}
}

func newParty(kind titan.Kind) func(r *Record) titan.NewEntity {
	return func(r *Record) titan.NewEntity {
		return titan.NewEntity{
			Kind:    kind,
			Number:  r.Key,
			Name:    r.Name,
			Address: r.Fields.Text("address"),
			City:    r.City,
			State:   r.State,
			Zip:     r.Fields.Text("zip"),
			Phone:   r.Fields.Text("phone"),
			Email:   r.Fields.Text("email"),
		}
	}
}
