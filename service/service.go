package service

import "context"

// Service is an interface for all services that can be run in app.App.
type Service interface {
	// Run the Service until the given context.Context is done.
	Run(ctx context.Context) error
}

// Func is a function that implements Service.
type Func func(ctx context.Context) error

// Run calls the function.
func (f Func) Run(ctx context.Context) error {
	return f(ctx)
}
