// Package naming derives caller-visible property names from database
// identifiers during schema introspection.
package naming

import (
	"strings"

	"github.com/jinzhu/inflection"
)

// PropertyName converts a column or table name to camelCase.
// Example: "user_name" -> "userName".
func PropertyName(databaseName string) string {
	parts := strings.Split(databaseName, "_")
	for i := 1; i < len(parts); i++ {
		if len(parts[i]) > 0 {
			parts[i] = strings.ToUpper(parts[i][:1]) + parts[i][1:]
		}
	}
	return strings.Join(parts, "")
}

// ToOnePropertyName names a to-one relation after its FK column with the
// common suffixes stripped. Example: "author_id" -> "author".
func ToOnePropertyName(fkColumn string) string {
	name := fkColumn
	for _, suffix := range []string{"_id", "_fk"} {
		if strings.HasSuffix(strings.ToLower(name), suffix) {
			name = name[:len(name)-len(suffix)]
			break
		}
	}
	return PropertyName(name)
}

// ToManyPropertyName names a to-many relation after the pluralized remote
// table. When the remote table carries several FKs to the same target, the
// FK column prefixes the name for disambiguation.
// Example: "comments"; with fkColumn "author_id": "authorComments".
func ToManyPropertyName(remoteTable, fkColumn string, isOnlyFK bool) string {
	plural := Pluralize(PropertyName(remoteTable))
	if isOnlyFK {
		return plural
	}
	prefix := ToOnePropertyName(fkColumn)
	if len(plural) > 0 {
		return prefix + strings.ToUpper(plural[:1]) + plural[1:]
	}
	return prefix
}

// TypeName converts a table name to a PascalCase singular entity name.
// Example: "user_profiles" -> "UserProfile".
func TypeName(tableName string) string {
	parts := strings.Split(Singularize(tableName), "_")
	for i := range parts {
		if len(parts[i]) > 0 {
			parts[i] = strings.ToUpper(parts[i][:1]) + parts[i][1:]
		}
	}
	return strings.Join(parts, "")
}

// Pluralize converts a singular word to its plural form.
func Pluralize(word string) string {
	return inflection.Plural(word)
}

// Singularize converts a plural word to its singular form.
func Singularize(word string) string {
	return inflection.Singular(word)
}
