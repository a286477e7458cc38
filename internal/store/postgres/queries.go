package postgres

const queryGetCourseStatus = `
SELECT status FROM courses WHERE id = $1
`

const queryGetCourse = `
SELECT
    id, title, code, status, schedule, price, currency, platform,
    instructors, technical_summary, recording_summary, interaction_summary,
    created_at, updated_at
FROM courses
WHERE id = $1
`

const queryGetNotificationRecipients = `
SELECT email, first_name, last_name
FROM users
WHERE notify_new_courses = true
  AND email <> ''
ORDER BY email
`

// Only active enrollments receive update and cancellation emails;
// pending, refunded and cancelled rows are excluded.
const queryGetRegisteredStudents = `
SELECT u.email, u.first_name, u.last_name
FROM users u
JOIN enrollments e ON e.user_id = u.id
WHERE e.course_id = $1
  AND e.status IN ('paid', 'registered')
  AND u.email <> ''
ORDER BY u.email
`

const queryGetInstructorEmails = `
SELECT u.email
FROM users u
JOIN course_instructors ci ON ci.user_id = u.id
WHERE ci.course_id = $1
  AND u.email <> ''
ORDER BY u.email
`

const queryRecordScheduled = `
INSERT INTO announcement_schedule (course_id, fire_at, scheduled_at, announced_at)
VALUES ($1, $2, NOW(), NULL)
ON CONFLICT (course_id) DO UPDATE
SET fire_at = EXCLUDED.fire_at, scheduled_at = NOW(), announced_at = NULL
`

const queryMarkAnnounced = `
UPDATE announcement_schedule
SET announced_at = $2
WHERE course_id = $1
`

const queryClearScheduled = `
DELETE FROM announcement_schedule
WHERE course_id = $1 AND announced_at IS NULL
`

const queryGetUnannouncedCourses = `
SELECT
    c.id, c.title, c.code, c.status, c.schedule, c.price, c.currency, c.platform,
    c.instructors, c.technical_summary, c.recording_summary, c.interaction_summary,
    c.created_at, c.updated_at
FROM courses c
JOIN announcement_schedule a ON a.course_id = c.id
WHERE a.announced_at IS NULL
ORDER BY a.fire_at ASC
LIMIT $1
`

const queryListAnnouncedSince = `
SELECT
    c.id, c.title, c.code, c.status, c.schedule, c.price, c.currency, c.platform,
    c.instructors, c.technical_summary, c.recording_summary, c.interaction_summary,
    c.created_at, c.updated_at
FROM courses c
JOIN announcement_schedule a ON a.course_id = c.id
WHERE a.announced_at >= $1
ORDER BY a.announced_at ASC
`

const queryInsertSendAttempt = `
INSERT INTO send_attempts (id, course_id, kind, attempt, status_code, error, started_at, finished_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
`

const queryInsertNotificationEvent = `
INSERT INTO notification_events (id, type, course_id, kind, recipients, fire_at, reason, created_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
`
