FROM golang:1.25-alpine AS builder

# api, watcher, projector, ton-indexer or houseadmin
ARG SERVICE=api

WORKDIR /app

COPY go.mod go.sum ./
RUN go mod download

COPY . .

# Migrations are embedded in the binary.
RUN CGO_ENABLED=0 GOOS=linux go build -o /app/service ./cmd/${SERVICE}

FROM alpine:3.20

RUN apk add --no-cache ca-certificates tzdata

WORKDIR /app

COPY --from=builder /app/service .

EXPOSE 3000 9100

CMD ["./service"]
