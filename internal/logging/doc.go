// Package logging builds the zap logger used by a songmesh node.
//
// Console output is meant for people tailing a terminal; json output is
// meant for log shippers:
//
//	logger, err := logging.New(logging.Options{Level: "debug", Format: "json"})
package logging
