package mysql

// All collections share one table; body is the document as JSON.

const getDocSQL = `
SELECT body
FROM documents
WHERE collection = ? AND id = ?
`

const existsDocSQL = `
SELECT 1
FROM documents
WHERE collection = ? AND id = ?
`

// seq is AUTO_INCREMENT and untouched on update, so it keeps insertion order.
const upsertDocSQL = `
INSERT INTO documents (collection, id, body)
VALUES (?, ?, ?)
ON DUPLICATE KEY UPDATE
  body       = VALUES(body),
  updated_at = CURRENT_TIMESTAMP(6)
`

// JSON_MERGE_PATCH overwrites top-level keys present in the patch and keeps the rest.
const mergeDocSQL = `
UPDATE documents
SET body       = JSON_MERGE_PATCH(body, CAST(? AS JSON)),
    updated_at = CURRENT_TIMESTAMP(6)
WHERE collection = ? AND id = ?
`

const queryDocsPrefix = `
SELECT id, body
FROM documents
WHERE collection = ?`

// predicate on a top-level key; JSON comparison treats 5 and 5.0 as equal
const queryDocsPredicate = `
  AND JSON_EXTRACT(body, ?) = CAST(? AS JSON)`

const queryDocsOrder = `
ORDER BY seq`

const lockSuffix = `
FOR UPDATE`
