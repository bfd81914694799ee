// Package http exposes the booking API over JSON.
//
// The router exposes the following endpoints:
//   - POST /api/auth/register, /api/auth/login, /api/auth/refresh-token: public,
//     rate limited per client address. Each returns a token pair and the user.
//   - POST /api/booking, GET /api/booking, GET /api/booking/{id},
//     DELETE /api/booking/{id}: bookings of the caller, or of anyone for
//     administrators. Overlapping requests answer 409 BOOKING_CONFLICT with the
//     ids of the blocking bookings.
//   - GET /api/room/get-all, GET /api/room/{id}, GET /api/room/available?start=&end=:
//     room catalog and availability for any authenticated caller.
//   - POST /api/room/create, PUT /api/room/{id}, DELETE /api/room/{id}: room
//     administration. Changes blocked by upcoming bookings answer 409
//     ROOM_HAS_FUTURE_BOOKINGS.
//   - /api/admin/users: administrator user management.
//   - GET /healthz: 200 when the database answers.
//
// Protected routes expect "Authorization: Bearer <access token>".
// Request/response DTOs live alongside their respective handlers.
package http
