// Package zone resolves location transition events to named clock zones.
//
// A Registry holds four fixed zones (traveling, unknown, lost, mortal peril)
// and an ordered list of named zones, each with a regular expression that is
// searched for in the free-text region description of an event. The first
// named zone in declaration order whose pattern matches wins.
//
// Registries are immutable once built and safe for concurrent reads. A
// reload builds a new Registry rather than mutating the old one.
package zone
