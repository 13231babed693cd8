package report

import (
	"strings"

	"github.com/mobilityedgeai/chatplanilha/pkg/dataset"
	"github.com/mobilityedgeai/chatplanilha/pkg/models"
)

// Role identifies the semantic purpose of a dataset column inside a report.
type Role string

const (
	RoleDriver      Role = "driver"
	RoleDistance    Role = "distance"
	RoleDuration    Role = "duration"
	RoleFuel        Role = "fuel"
	RoleEvents      Role = "events"
	RoleDate        Role = "date"
	RoleOrigin      Role = "origin"
	RoleDestination Role = "destination"
)

// rolePatterns maps each role to lowercase substrings matched against column
// names. Portuguese and English spellings are both recognized; patterns are
// ordered so the more specific ones win.
var rolePatterns = map[Role][]string{
	RoleDriver:      {"motorista", "condutor", "driver"},
	RoleDistance:    {"distancia", "distância", "quilometragem", "distance", "mileage", "km"},
	RoleDuration:    {"duracao", "duração", "tempo", "duration", "time"},
	RoleFuel:        {"combustivel", "combustível", "consumo", "fuel", "consumption"},
	RoleEvents:      {"infracoes", "infrações", "infracao", "infração", "eventos", "evento", "violations", "violation", "events", "event", "alertas", "alerts"},
	RoleDate:        {"data", "date", "dia", "day"},
	RoleOrigin:      {"origem", "origin", "partida", "saida", "saída"},
	RoleDestination: {"destino", "destination", "chegada"},
}

// numericRoles must bind to numeric columns to be usable in aggregations.
var numericRoles = map[Role]bool{
	RoleDistance: true,
	RoleDuration: true,
	RoleFuel:     true,
	RoleEvents:   true,
}

// Bindings maps report roles to the dataset column names they resolved to.
type Bindings map[Role]string

// BindColumns matches the dataset's columns against the known role patterns.
// Each role binds at most once, to the first column whose name contains one
// of its patterns; numeric roles only bind numeric columns.
func BindColumns(ds *dataset.Dataset) Bindings {
	bound := make(Bindings)
	taken := make(map[string]bool)

	for _, role := range []Role{RoleDriver, RoleDistance, RoleDuration, RoleFuel, RoleEvents, RoleDate, RoleOrigin, RoleDestination} {
		for _, col := range ds.Columns() {
			if taken[col.Name] {
				continue
			}
			if numericRoles[role] && !col.Type.IsNumeric() {
				continue
			}
			if role == RoleDate && col.Type != models.TypeDate {
				continue
			}
			if matchesRole(col.Name, rolePatterns[role]) {
				bound[role] = col.Name
				taken[col.Name] = true
				break
			}
		}
	}
	return bound
}

func matchesRole(name string, patterns []string) bool {
	lower := strings.ToLower(name)
	for _, p := range patterns {
		if strings.Contains(lower, p) {
			return true
		}
	}
	return false
}
