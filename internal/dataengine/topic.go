package dataengine

import (
	"context"
	"strings"

	"github.com/correlator-io/dataengine/internal/metadata"
)

// UpsertTopic upserts a topic and the event types reported with it.
func (s *Service) UpsertTopic(
	ctx context.Context,
	userID, externalSourceName string,
	topic *metadata.Topic,
) (UpsertResult, error) {
	const operation = "upsert_topic"

	if err := s.validator.ValidateTopic(topic); err != nil {
		return UpsertResult{}, s.fail(ctx, operation, err)
	}

	var result UpsertResult

	err := s.write(ctx, operation, userID, externalSourceName, func(ctx context.Context, u *unit) error {
		var err error

		result, err = u.upsert(ctx, entitySpec{
			typeName:      metadata.TypeTopic,
			qualifiedName: topic.QualifiedName,
			properties:    topic.EntityProperties(),
		})
		if err != nil {
			return err
		}

		for _, eventType := range topic.EventTypes {
			if _, err := u.upsertEventType(ctx, eventType, result.GUID); err != nil {
				return err
			}
		}

		return nil
	})
	if err != nil {
		return UpsertResult{}, err
	}

	return result, nil
}

// UpsertEventType upserts an event type of the topic topicQualifiedName and its
// attributes. Attributes missing from the request are deleted.
func (s *Service) UpsertEventType(
	ctx context.Context,
	userID, externalSourceName string,
	eventType *metadata.EventType,
	topicQualifiedName string,
) (UpsertResult, error) {
	const operation = "upsert_event_type"

	if err := s.validator.ValidateEventType(eventType); err != nil {
		return UpsertResult{}, s.fail(ctx, operation, err)
	}

	if strings.TrimSpace(topicQualifiedName) == "" {
		return UpsertResult{}, s.fail(ctx, operation, metadata.ErrMissingParentName)
	}

	var result UpsertResult

	err := s.write(ctx, operation, userID, externalSourceName, func(ctx context.Context, u *unit) error {
		topic, err := u.find(ctx, metadata.TypeTopic, topicQualifiedName)
		if err != nil {
			return err
		}

		result, err = u.upsertEventType(ctx, eventType, topic.GUID)

		return err
	})
	if err != nil {
		return UpsertResult{}, err
	}

	return result, nil
}

// DeleteTopic deletes a topic with its event types.
func (s *Service) DeleteTopic(
	ctx context.Context,
	userID, externalSourceName, qualifiedName string,
	semantic metadata.DeleteSemantic,
) error {
	return s.deleteEntity(ctx, "delete_topic", userID, externalSourceName,
		metadata.TypeTopic, qualifiedName, semantic)
}

// DeleteEventType deletes an event type with its attributes.
func (s *Service) DeleteEventType(
	ctx context.Context,
	userID, externalSourceName, qualifiedName string,
	semantic metadata.DeleteSemantic,
) error {
	return s.deleteEntity(ctx, "delete_event_type", userID, externalSourceName,
		metadata.TypeEventType, qualifiedName, semantic)
}

func (u *unit) upsertEventType(ctx context.Context, eventType *metadata.EventType, topicGUID string) (UpsertResult, error) {
	result, err := u.upsert(ctx, entitySpec{
		typeName:      metadata.TypeEventType,
		qualifiedName: eventType.QualifiedName,
		properties:    eventType.EntityProperties(),
	})
	if err != nil {
		return UpsertResult{}, err
	}

	if err := u.linkChild(ctx, metadata.RelSchemaTypeOption, topicGUID, result.GUID, nil); err != nil {
		return UpsertResult{}, err
	}

	columns := tabularColumns(eventType.Attributes)
	if err := u.syncAttributes(ctx, metadata.RelAttributeForSchema, result.GUID, columns); err != nil {
		return UpsertResult{}, err
	}

	return result, nil
}
