// Package battery defines the vendor-neutral model shared by detection,
// threshold control and forced discharge:
//
//   - DriverStatus: outcome of probing a vendor back end
//   - Capabilities: which operations are available and through which path family
//   - Battery: one detected battery and its backing paths
//   - Registry: resolution of battery ids to Battery values
//   - Backend: the operation contract every vendor variant implements
package battery
