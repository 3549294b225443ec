// Package control provides the feedback primitives used by motion
// controllers:
//
//   - [PID]: error-driven PID with anti-windup, sign-flip integral reset
//     and optional output slew limiting
//   - [ExitCondition]: settle timer over a thresholded value
//   - [ExitConditions]: OR of small-error, large-error and velocity exits
//
// # Usage
//
//	pid := control.NewPIDWithSlew(control.Gains{Kp: 15, Kd: 0.1}, 3, true, 10)
//	out := pid.Update(err) // dt measured from the previous call
//	pid.Reset()            // between independent motions
//
// PID exposes GetParams/SetParam for live tuning.
package control
