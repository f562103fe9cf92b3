// Command pharmds checks drug lists for documented pharmacokinetic and
// pharmacodynamic interactions and manages the knowledge base behind them.
//
// Usage:
//
//	# Check a drug list
//	pharmds check warfarin fluconazole
//
//	# Read drug lists from files or stdin, restricted to CYP rules
//	pharmds check -f meds.txt --domain cyp --format json
//
//	# Validate a directory of rule files against the knowledge base
//	pharmds rules validate --dir ./rules
//
//	# Seed a SQLite knowledge base from the curation dataset
//	pharmds kb seed --driver sqlite
package main

func main() {
	Execute()
}
