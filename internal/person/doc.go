// Package person maps tracker identities to the people shown on the clock.
//
// Each declared person contributes one identity pattern, "<user>/<device>",
// compiled as a regular expression. Lookup searches the incoming identity
// with every pattern in declaration order and the first match wins, so a
// single entry may cover several devices and overlapping entries resolve
// by order.
package person
