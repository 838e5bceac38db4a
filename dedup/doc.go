// Package dedup derives stable idempotency keys for raw inbound events and
// maintains the bounded ledger of recently seen keys that suppresses
// at-least-once redelivery. The key rules are deliberately biased: a false
// negative (processing an event twice) is tolerable because every mutation
// downstream is idempotent, while a false positive (dropping a real event)
// is not.
package dedup
