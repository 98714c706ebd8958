// Package box defines the recycling box entity and its helpers.
//
// Record is the wire shape returned by the backend (snake_case, string
// timestamps). Box is the shape the rest of the client works with. FromRecord
// and ToPatch convert between them; both are total and side-effect free.
//
// Validation runs on Input, whose nil fields are skipped, so the same rules
// serve full boxes, partial updates and status changes. The rule that the
// current amount may not exceed capacity is checked whenever both are known;
// the Box type itself does not enforce it.
package box
