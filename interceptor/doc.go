// Copyright (c) 2025
// Author: momentics <momentics@gmail.com>

// Package interceptor layers a user-registered handler chain over the
// listener contract. Every router callback becomes an explicit Event
// variant; interceptors are walked in registration order, and propagation
// stops when a matched interceptor says so.
package interceptor
