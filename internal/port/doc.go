// Package port allocates host ports for challenges.
//
// Ports come from a half-open Range, [31000, 32000) by default. Allocation
// is first-fit: the lowest port not already owned in the registry is chosen,
// so ports freed by removed challenges are reused before the range grows.
//
//	port, err := port.Allocate(port.DefaultRange, usedPorts)
//
// Operator-pinned ports go through ValidateManual, which checks format and
// range only. It does not check for collisions with existing entries.
package port
