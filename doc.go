// Package migratory plans and runs reversible migrations against any
// backend. A Config bundles the declared migrations, the record store that
// tracks which of them are applied, and the arguments handed to every
// migration body; the Runner reconciles the two and executes the result one
// step at a time.
package migratory
